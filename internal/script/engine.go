package script

import (
	"fmt"

	"github.com/d5/tengo/v2"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/body"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/layers"
	"github.com/san-kum/rigidsim/internal/shape"
)

type callable func(rt *Runtime, args []tengo.Object) (tengo.Object, error)

// engine builds the function table. Every function resolves bodies by name
// on the system of the run in progress.
func (rt *Runtime) engine() *tengo.ImmutableMap {
	fns := map[string]callable{
		"position":       position,
		"velocity":       velocity,
		"angular":        angular,
		"impulse":        impulse,
		"set_velocity":   setVelocity,
		"move_kinematic": moveKinematic,
		"activate":       activate,
		"deactivate":     deactivate,
		"is_active":      isActive,
		"is_added":       isAdded,
		"set_sensor":     setSensor,
		"remove":         remove,
		"set_gravity":    setGravity,
		"contacts":       contacts,
		"query_box":      queryBox,
		"log":            logLine,
	}

	values := make(map[string]tengo.Object, len(fns))
	for name, fn := range fns {
		name, fn := name, fn
		values[name] = &tengo.UserFunction{Name: name, Value: func(args ...tengo.Object) (tengo.Object, error) {
			if rt.sys == nil {
				return nil, dynamo.Usagef("%s called outside a tick", name)
			}
			return fn(rt, args)
		}}
	}
	return &tengo.ImmutableMap{Value: values}
}

func position(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return vecObject(rt.sys.Bodies().Position(h)), nil
}

func velocity(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return vecObject(rt.sys.Bodies().LinearVelocity(h)), nil
}

func angular(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return vecObject(rt.sys.Bodies().AngularVelocity(h)), nil
}

func impulse(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 4)
	if err != nil {
		return nil, err
	}
	j, err := vecArg(args, 1)
	if err != nil {
		return nil, err
	}
	return tengo.TrueValue, rt.sys.Bodies().AddImpulse(h, j, nil)
}

func setVelocity(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 4)
	if err != nil {
		return nil, err
	}
	v, err := vecArg(args, 1)
	if err != nil {
		return nil, err
	}
	return tengo.TrueValue, rt.sys.Bodies().SetLinearVelocity(h, v)
}

// move_kinematic(name, x, y, z, seconds) keeps the current rotation.
func moveKinematic(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 5)
	if err != nil {
		return nil, err
	}
	p, err := vecArg(args, 1)
	if err != nil {
		return nil, err
	}
	t, err := floatArg(args, 4)
	if err != nil {
		return nil, err
	}
	bodies := rt.sys.Bodies()
	return tengo.TrueValue, bodies.MoveKinematic(h, p, bodies.Rotation(h), t)
}

func activate(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return tengo.TrueValue, rt.sys.Bodies().ActivateBody(h)
}

func deactivate(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return tengo.TrueValue, rt.sys.Bodies().DeactivateBody(h)
}

func isActive(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return boolObject(rt.sys.Bodies().IsActive(h)), nil
}

func isAdded(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return boolObject(rt.sys.Bodies().IsAdded(h)), nil
}

func setSensor(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 2)
	if err != nil {
		return nil, err
	}
	on, ok := tengo.ToBool(args[1])
	if !ok {
		return nil, tengo.ErrInvalidArgumentType{Name: "second", Expected: "bool", Found: args[1].TypeName()}
	}
	return tengo.TrueValue, rt.sys.Bodies().SetSensor(h, on)
}

func remove(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	return tengo.TrueValue, rt.sys.Bodies().RemoveBody(h)
}

func setGravity(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	if len(args) != 3 {
		return nil, tengo.ErrWrongNumArguments
	}
	g, err := vecArg(args, 0)
	if err != nil {
		return nil, err
	}
	return tengo.TrueValue, rt.sys.SetGravity(g)
}

// contacts() counts touching pairs; contacts(name) only those involving name.
func contacts(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	cs := rt.sys.Contacts()
	if len(args) == 0 {
		return &tengo.Int{Value: int64(len(cs))}, nil
	}
	h, err := handleArg(rt, args, 1)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, c := range cs {
		if c.Involves(h) {
			n++
		}
	}
	return &tengo.Int{Value: int64(n)}, nil
}

// query_box(cx, cy, cz, hx, hy, hz [, layer]) lists names of bodies whose
// bounds overlap the box. With a layer name only bodies on that layer are
// returned.
func queryBox(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	if len(args) != 6 && len(args) != 7 {
		return nil, tengo.ErrWrongNumArguments
	}
	c, err := vecArg(args, 0)
	if err != nil {
		return nil, err
	}
	half, err := vecArg(args, 3)
	if err != nil {
		return nil, err
	}
	filter := layers.AllObjectLayers
	if len(args) == 7 {
		name, ok := tengo.ToString(args[6])
		if !ok {
			return nil, tengo.ErrInvalidArgumentType{Name: "seventh", Expected: "string", Found: args[6].TypeName()}
		}
		reg := rt.sys.Bodies().Layers()
		l, ok := reg.ObjectLayerByName(name)
		if !ok {
			return nil, dynamo.Usagef("unknown object layer %q", name)
		}
		filter = layers.ObjectLayerFunc(func(o layers.ObjectLayer) bool { return o == l })
	}

	hits := rt.sys.QueryAABox(shape.BoxAround(c, half), nil, filter)
	out := make([]tengo.Object, 0, len(hits))
	for _, h := range hits {
		b, err := rt.sys.Bodies().Get(h)
		if err != nil {
			return nil, err
		}
		out = append(out, &tengo.String{Value: b.Name})
	}
	return &tengo.Array{Value: out}, nil
}

func logLine(rt *Runtime, args []tengo.Object) (tengo.Object, error) {
	parts := make([]any, 0, len(args))
	for _, a := range args {
		parts = append(parts, tengo.ToInterface(a))
	}
	rt.logger.Info(fmt.Sprint(parts...), "t", rt.sys.Time())
	return tengo.UndefinedValue, nil
}

func handleArg(rt *Runtime, args []tengo.Object, n int) (body.Handle, error) {
	if len(args) != n {
		return body.InvalidHandle, tengo.ErrWrongNumArguments
	}
	name, ok := tengo.ToString(args[0])
	if !ok {
		return body.InvalidHandle, tengo.ErrInvalidArgumentType{Name: "first", Expected: "string", Found: args[0].TypeName()}
	}
	h, ok := rt.sys.Bodies().Find(name)
	if !ok {
		return body.InvalidHandle, dynamo.Usagef("no body named %q", name)
	}
	return h, nil
}

func floatArg(args []tengo.Object, i int) (float64, error) {
	v, ok := tengo.ToFloat64(args[i])
	if !ok {
		return 0, tengo.ErrInvalidArgumentType{Name: fmt.Sprintf("argument %d", i+1), Expected: "float", Found: args[i].TypeName()}
	}
	return v, nil
}

func vecArg(args []tengo.Object, from int) (mgl64.Vec3, error) {
	var v mgl64.Vec3
	for i := 0; i < 3; i++ {
		f, err := floatArg(args, from+i)
		if err != nil {
			return v, err
		}
		v[i] = f
	}
	return v, nil
}

func vecObject(v mgl64.Vec3) *tengo.Array {
	return &tengo.Array{Value: []tengo.Object{
		&tengo.Float{Value: v[0]},
		&tengo.Float{Value: v[1]},
		&tengo.Float{Value: v[2]},
	}}
}

func boolObject(b bool) tengo.Object {
	if b {
		return tengo.TrueValue
	}
	return tengo.FalseValue
}

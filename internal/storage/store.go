package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/san-kum/rigidsim/internal/dynamo"
	"github.com/san-kum/rigidsim/internal/experiment"
)

const (
	metadataFile   = "metadata.json"
	trajectoryFile = "trajectory.csv"
)

var trajectoryHeader = []string{
	"step", "time", "body",
	"x", "y", "z",
	"qw", "qx", "qy", "qz",
	"vx", "vy", "vz",
	"active",
}

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

type RunMetadata struct {
	ID             string             `json:"id"`
	Scene          string             `json:"scene"`
	Timestamp      time.Time          `json:"timestamp"`
	Dt             float64            `json:"dt"`
	CollisionSteps int                `json:"collision_steps"`
	Duration       float64            `json:"duration"`
	Steps          int                `json:"steps"`
	Workers        int                `json:"workers"`
	Integrator     string             `json:"integrator"`
	Bodies         []string           `json:"bodies"`
	Metrics        map[string]float64 `json:"metrics"`
}

// Sample is one body's state at the end of a step.
type Sample struct {
	Step     int
	Time     float64
	Body     string
	Position mgl64.Vec3
	Rotation mgl64.Quat
	Velocity mgl64.Vec3
	Active   bool
}

// Trajectory holds samples in step order, bodies in creation order within
// a step.
type Trajectory struct {
	Samples []Sample
}

// Record appends one step's worth of views.
func (t *Trajectory) Record(step int, simTime float64, views []experiment.BodyView) {
	for _, v := range views {
		t.Samples = append(t.Samples, Sample{
			Step:     step,
			Time:     simTime,
			Body:     v.Name,
			Position: v.Position,
			Rotation: v.Rotation,
			Velocity: v.Velocity,
			Active:   v.Active,
		})
	}
}

// Bodies lists body names in first-seen order.
func (t *Trajectory) Bodies() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range t.Samples {
		if !seen[s.Body] {
			seen[s.Body] = true
			names = append(names, s.Body)
		}
	}
	return names
}

// Series returns the times and positions of one body.
func (t *Trajectory) Series(name string) ([]float64, []mgl64.Vec3) {
	var times []float64
	var positions []mgl64.Vec3
	for _, s := range t.Samples {
		if s.Body == name {
			times = append(times, s.Time)
			positions = append(positions, s.Position)
		}
	}
	return times, positions
}

func (s *Store) newRunID(scene string) string {
	base := fmt.Sprintf("%s_%d", scene, time.Now().Unix())
	id := base
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.baseDir, id)); os.IsNotExist(err) {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, i)
	}
}

// Save writes a new run directory and returns its ID. meta.ID and
// meta.Timestamp are filled in.
func (s *Store) Save(meta RunMetadata, traj *Trajectory) (string, error) {
	if meta.Scene == "" {
		return "", dynamo.Usagef("run metadata needs a scene name")
	}
	if err := s.Init(); err != nil {
		return "", err
	}

	meta.ID = s.newRunID(meta.Scene)
	meta.Timestamp = time.Now()
	if traj != nil && len(meta.Bodies) == 0 {
		meta.Bodies = traj.Bodies()
	}
	runDir := filepath.Join(s.baseDir, meta.ID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	metaFile, err := os.Create(filepath.Join(runDir, metadataFile))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, trajectoryFile))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	if err := writeTrajectory(csvFile, traj); err != nil {
		return "", fmt.Errorf("write trajectory: %w", err)
	}
	return meta.ID, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeTrajectory(out io.Writer, traj *Trajectory) error {
	w := csv.NewWriter(out)
	if err := w.Write(trajectoryHeader); err != nil {
		return err
	}
	if traj != nil {
		for _, smp := range traj.Samples {
			row := []string{
				strconv.Itoa(smp.Step),
				formatFloat(smp.Time),
				smp.Body,
				formatFloat(smp.Position[0]), formatFloat(smp.Position[1]), formatFloat(smp.Position[2]),
				formatFloat(smp.Rotation.W), formatFloat(smp.Rotation.V[0]),
				formatFloat(smp.Rotation.V[1]), formatFloat(smp.Rotation.V[2]),
				formatFloat(smp.Velocity[0]), formatFloat(smp.Velocity[1]), formatFloat(smp.Velocity[2]),
				strconv.FormatBool(smp.Active),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
	}
	w.Flush()
	return w.Error()
}

// List returns every readable run, newest first.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].Timestamp.After(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, dynamo.Usagef("no run %q in %s", runID, s.baseDir)
		}
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return &meta, nil
}

func (s *Store) LoadTrajectory(runID string) (*Trajectory, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, trajectoryFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, dynamo.Usagef("no trajectory for run %q", runID)
		}
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(trajectoryHeader)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	traj := &Trajectory{}
	for i := 1; i < len(records); i++ {
		smp, err := parseSample(records[i])
		if err != nil {
			return nil, fmt.Errorf("run %s line %d: %w", runID, i+1, err)
		}
		traj.Samples = append(traj.Samples, smp)
	}
	return traj, nil
}

func parseSample(rec []string) (Sample, error) {
	step, err := strconv.Atoi(rec[0])
	if err != nil {
		return Sample{}, err
	}
	nums := make([]float64, 0, 11)
	for _, field := range append([]string{rec[1]}, rec[3:13]...) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return Sample{}, err
		}
		nums = append(nums, v)
	}
	active, err := strconv.ParseBool(rec[13])
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Step:     step,
		Time:     nums[0],
		Body:     rec[2],
		Position: mgl64.Vec3{nums[1], nums[2], nums[3]},
		Rotation: mgl64.Quat{W: nums[4], V: mgl64.Vec3{nums[5], nums[6], nums[7]}},
		Velocity: mgl64.Vec3{nums[8], nums[9], nums[10]},
		Active:   active,
	}, nil
}

type exportedRun struct {
	Metadata RunMetadata  `json:"metadata"`
	Bodies   []exportBody `json:"bodies"`
}

type exportBody struct {
	Name      string       `json:"name"`
	Times     []float64    `json:"times"`
	Positions [][3]float64 `json:"positions"`
}

// ExportJSON writes a run's metadata and per-body position series as one
// JSON document.
func (s *Store) ExportJSON(runID string, w io.Writer) error {
	meta, err := s.Load(runID)
	if err != nil {
		return err
	}
	traj, err := s.LoadTrajectory(runID)
	if err != nil {
		return err
	}

	out := exportedRun{Metadata: *meta}
	for _, name := range traj.Bodies() {
		times, positions := traj.Series(name)
		eb := exportBody{Name: name, Times: times, Positions: make([][3]float64, len(positions))}
		for i, p := range positions {
			eb.Positions[i] = [3]float64(p)
		}
		out.Bodies = append(out.Bodies, eb)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

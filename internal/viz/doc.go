// Package viz is the terminal viewer for experiment scenes.
//
// Bodies are drawn as braille wireframes through an orbiting camera, next
// to a stats panel with the tracked body's height chart. Keys not bound by
// the viewer are forwarded to the scene.
//
// # Key Bindings
//
//	Space  - pause / resume
//	R      - rebuild the scene
//	+ / -  - double / halve simulation speed
//	Arrows - orbit the camera
//	[ / ]  - zoom
//	G      - toggle GIF recording
//	T      - cycle color themes
//	?      - help overlay
package viz

// Package logx is alerticorn's logging layer over zerolog.
//
// Everything goes to stderr so a host runner's stdout stays clean. Stderr is
// human-readable by default or JSON with format "json"; the optional file
// sink is always JSON. A Service hands out Loggers that follow level and
// sink changes made by Service.Apply after a config reload.
package logx

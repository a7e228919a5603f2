// Package logging provides structured logging utilities for sensorview.
//
// # Overview
//
// The package wraps log/slog with the conventions used across the
// repository:
//
//   - Console logger (text or JSON) with module, version and run_id attributes
//   - Level from --log-level or the LOG_LEVEL environment variable
//   - Append-only error log file (log/error.log) for operator review
//   - Latch: edge-triggered error reporting so a persisting failure is
//     written once, and re-armed by the next success
//
// # Usage
//
//	logging.SetDefaultStructuredLoggerWithLevel("sensorview", version, "info")
//
//	errLog, err := logging.OpenErrorLog("log")
//	if err != nil {
//	    return err
//	}
//	defer errLog.Close()
//
//	latch := logging.NewLatch("camera", slog.Default(), errLog.Logger())
//	if _, err := cam.Grab(); err != nil {
//	    latch.Fail(err) // logged once while the failure persists
//	} else {
//	    latch.Ok() // next failure is logged again
//	}
//
// Messages follow the "component: message" convention:
//
//	slog.Info("camera: device opened", "index", 0, "resolution", "720x480")
package logging

package display

import "log/slog"

// LogSink writes frames to a logger instead of a screen. It backs the host
// build and headless boards.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Greet(title, subtitle string) error {
	s.Log.Info(title, slog.String("status", subtitle))
	return nil
}

func (s LogSink) Draw(f Frame) error {
	s.Log.Debug("frame",
		slog.String("clock", f.Clock),
		slog.Int("bars", f.Bars),
		slog.String("temperature", f.Temperature),
		slog.String("tds", f.TDS),
	)
	return nil
}

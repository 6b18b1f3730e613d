package menu

import (
	"context"
	"os/exec"
	"time"

	"mensabot/pkg/logx"
)

type ConverterConfig struct {
	// Binary is the ImageMagick convert executable.
	Binary string
	// Timeout bounds one conversion run.
	Timeout time.Duration
}

// ImageMagick rasterizes the menu PDF by shelling out to convert(1), the
// same invocation the kitchen display has always used.
type ImageMagick struct {
	cfg ConverterConfig
	log logx.Logger
}

func NewImageMagick(cfg ConverterConfig, log logx.Logger) *ImageMagick {
	if cfg.Binary == "" {
		cfg.Binary = "convert"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &ImageMagick{cfg: cfg, log: log}
}

func (m *ImageMagick) Convert(ctx context.Context, srcPath, dstPath string) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	args := []string{
		"-limit", "memory", "128mb",
		"-density", "300x300",
		"-background", "white",
		"-alpha", "remove",
		srcPath, dstPath,
	}
	cmd := exec.CommandContext(ctx, m.cfg.Binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		m.log.Warn("convert run failed",
			logx.String("binary", m.cfg.Binary),
			logx.String("output", string(out)),
			logx.Err(err))
		return err
	}
	return nil
}

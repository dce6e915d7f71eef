package logger

import (
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"

	"github.com/nulzo/omni-router/internal/cli"
)

var bufferPool = buffer.NewPool()

// coloredConsoleEncoder is zap's console encoder with the trailing JSON field
// blob syntax highlighted.
type coloredConsoleEncoder struct {
	zapcore.Encoder
}

func NewColoredConsoleEncoder(cfg zapcore.EncoderConfig) zapcore.Encoder {
	return &coloredConsoleEncoder{
		Encoder: zapcore.NewConsoleEncoder(cfg),
	}
}

func (c *coloredConsoleEncoder) Clone() zapcore.Encoder {
	return &coloredConsoleEncoder{
		Encoder: c.Encoder.Clone(),
	}
}

func (c *coloredConsoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	buf, err := c.Encoder.EncodeEntry(ent, fields)
	if err != nil {
		return nil, err
	}

	// the console encoder separates the fields with a tab: "TIME LEVEL MSG\t{...}"
	line := buf.String()
	splitIdx := strings.Index(line, "\t{")
	if splitIdx == -1 {
		return buf, nil
	}

	out := bufferPool.Get()
	out.AppendString(line[:splitIdx+1])
	out.AppendString(cli.HighlightJSON(line[splitIdx+1:]))
	buf.Free()

	return out, nil
}

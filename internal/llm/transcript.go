package llm

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"
)

// TranscriptSaver implements PromptHook and appends every prompt and raw
// response to <Dir>/<phase>.txt. Write failures are ignored.
type TranscriptSaver struct{ Dir string }

func (p *TranscriptSaver) path(phase string) string {
	if phase == "" {
		phase = "unknown"
	}
	_ = os.MkdirAll(p.Dir, 0o755)
	return filepath.Join(p.Dir, phase+".txt")
}

func (p *TranscriptSaver) Before(ctx context.Context, phase string, req Request) {
	var buf bytes.Buffer
	buf.WriteString("==== ")
	buf.WriteString(time.Now().Format(time.RFC3339))
	buf.WriteString(" ====\n[SYSTEM]\n")
	buf.WriteString(req.System)
	buf.WriteString("\n\n[USER]\n")
	buf.WriteString(req.User)
	buf.WriteString("\n\n")
	p.append(phase, buf.Bytes())
}

func (p *TranscriptSaver) After(ctx context.Context, phase string, text string, err error) {
	var buf bytes.Buffer
	buf.WriteString("[RESPONSE]\n")
	if err != nil {
		buf.WriteString("ERROR: " + err.Error() + "\n\n")
	} else {
		buf.WriteString(text)
		buf.WriteString("\n\n")
	}
	p.append(phase, buf.Bytes())
}

func (p *TranscriptSaver) append(phase string, b []byte) {
	f, _ := os.OpenFile(p.path(phase), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if f != nil {
		_, _ = f.Write(b)
		_ = f.Close()
	}
}

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/quilldict/quill/internal/audio"
	"github.com/quilldict/quill/internal/config"
)

type execRecognizer struct {
	cmd []string
	cfg config.TranscribeConfig
	mu  sync.Mutex
}

type execSegment struct {
	Text    string `json:"text"`
	StartMS int64  `json:"start_ms"`
	EndMS   int64  `json:"end_ms"`
}

type execResult struct {
	Text       string        `json:"text"`
	Language   string        `json:"language"`
	Confidence float64       `json:"confidence"`
	Segments   []execSegment `json:"segments"`
}

// NewExecRecognizer wraps a subprocess transcriber (whisper-cli style)
// that reads a WAV file and prints a JSON result on stdout.
func NewExecRecognizer(cfg config.TranscribeConfig) (Recognizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcribe command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcribe command is empty")
	}
	return &execRecognizer{cmd: args, cfg: cfg}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Result, error) {
	// The subprocess holds the model; one inference at a time.
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp(os.TempDir(), "quill_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := audio.WriteWAV(file, pcm, sampleRate, channels); err != nil {
		return Result{}, err
	}

	base := r.cmd[0]
	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	} else if r.cfg.Model != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.Model)
	}
	if r.cfg.Language != "" {
		cmdArgs = append(cmdArgs, "--language", r.cfg.Language)
	}

	command := exec.CommandContext(ctx, base, cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Result{}, fmt.Errorf("transcribe command failed: %w: %s", err, stderr.String())
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode transcribe response: %w", err)
	}

	result := Result{Text: resp.Text, Language: resp.Language, Confidence: resp.Confidence}
	for _, s := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Text:  s.Text,
			Start: time.Duration(s.StartMS) * time.Millisecond,
			End:   time.Duration(s.EndMS) * time.Millisecond,
		})
	}
	return result, nil
}

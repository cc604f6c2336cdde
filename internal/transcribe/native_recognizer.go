// This file contains the native recognizer backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.

package transcribe

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/quilldict/quill/internal/config"
)

type nativeRecognizer struct {
	model    whisperlib.Model
	language string
}

// NewNativeRecognizer loads the whisper.cpp model once; callers share it.
// Each Transcribe call creates its own whisper context, so concurrent
// sessions do not interfere.
func NewNativeRecognizer(cfg config.TranscribeConfig) (Recognizer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("native recognizer requires model_path")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", cfg.ModelPath, err)
	}
	lang := cfg.Language
	if lang == "" {
		lang = "en"
	}
	return &nativeRecognizer{model: model, language: lang}, nil
}

func (r *nativeRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate, channels int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	samples := pcmToFloat32Mono(pcm, channels)
	if len(samples) == 0 {
		return Result{}, errors.New("no audio samples")
	}

	// Contexts are not thread-safe; the model is.
	wctx, err := r.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("create whisper context: %w", err)
	}
	if err := wctx.SetLanguage(r.language); err != nil {
		return Result{}, fmt.Errorf("set language %q: %w", r.language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("whisper inference: %w", err)
	}

	var (
		parts    []string
		segments []Segment
	)
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read whisper segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		segments = append(segments, Segment{Text: text, Start: segment.Start, End: segment.End})
	}

	return Result{
		Text:     strings.Join(parts, " "),
		Language: r.language,
		Segments: segments,
	}, nil
}

// pcmToFloat32Mono converts s16le PCM into the normalized mono float32
// samples whisper.cpp expects, averaging channels when the input is not
// mono.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	sampleCount := len(pcm) / 2 / channels
	out := make([]float32, 0, sampleCount)
	for i := 0; i < sampleCount; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			sum += float32(s) / 32768.0
		}
		out = append(out, sum/float32(channels))
	}
	return out
}

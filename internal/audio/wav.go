package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes s16le PCM into a WAV container. Used to hand session
// buffers to subprocess recognizers and for debug clip dumps.
func WriteWAV(file *os.File, pcm []byte, sampleRate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &gaudio.IntBuffer{Format: &gaudio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// DumpClip writes a frozen session buffer into dir as a timestamped WAV
// file. Best-effort debugging aid, errors surface to the caller for a log
// line only.
func DumpClip(dir string, name string, b *RingBuffer) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dump dir: %w", err)
	}
	file, err := os.CreateTemp(dir, name+"_*.wav")
	if err != nil {
		return "", fmt.Errorf("create dump file: %w", err)
	}
	defer file.Close()
	if err := WriteWAV(file, b.Bytes(), b.SampleRate(), b.Channels()); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

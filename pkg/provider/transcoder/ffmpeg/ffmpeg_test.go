package ffmpeg_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder/ffmpeg"
)

func TestArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    transcoder.Options
		want    []string
		notWant []string
	}{
		{
			name:    "wav defaults",
			opts:    transcoder.Options{},
			want:    []string{"-ac", "1", "-ar", "48000", "-c:a", "pcm_s16le", "-f", "wav", "pipe:1"},
			notWant: []string{"-af", "libmp3lame"},
		},
		{
			name: "normalized wav",
			opts: transcoder.Options{Normalize: true},
			want: []string{"-af", "loudnorm=I=-16:TP=-1.5:LRA=11"},
		},
		{
			name:    "mp3 with bitrate",
			opts:    transcoder.Options{Format: transcoder.FormatMP3, Bitrate: "128k"},
			want:    []string{"-c:a", "libmp3lame", "-b:a", "128k", "-f", "mp3"},
			notWant: []string{"pcm_s16le"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			args := ffmpeg.Args(tc.opts)
			joined := strings.Join(args, " ")
			if !strings.Contains(joined, strings.Join(tc.want, " ")) {
				t.Errorf("args %q do not contain %q", joined, tc.want)
			}
			for _, nw := range tc.notWant {
				if slices.Contains(args, nw) {
					t.Errorf("args %q unexpectedly contain %q", joined, nw)
				}
			}
			if args[len(args)-1] != "pipe:1" {
				t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscode_PipesStdinToStdout(t *testing.T) {
	t.Parallel()

	p := ffmpeg.New(ffmpeg.WithPath(writeScript(t, "cat")))
	in := []byte("RIFF....WAVE payload")
	out, err := p.Transcode(context.Background(), in, transcoder.Options{})
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("out = %q, want %q", out, in)
	}
}

func TestTranscode_Errors(t *testing.T) {
	t.Parallel()

	failing := ffmpeg.New(ffmpeg.WithPath(writeScript(t, `echo "Invalid data found" >&2; exit 1`)))
	if _, err := failing.Transcode(context.Background(), []byte("x"), transcoder.Options{}); err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("err = %v, want stderr in message", err)
	}

	silent := ffmpeg.New(ffmpeg.WithPath(writeScript(t, "cat >/dev/null")))
	if _, err := silent.Transcode(context.Background(), []byte("x"), transcoder.Options{}); err == nil {
		t.Error("expected error for empty output")
	}

	if _, err := ffmpeg.New().Transcode(context.Background(), nil, transcoder.Options{}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestBinary(t *testing.T) {
	t.Parallel()
	if got := ffmpeg.New().Binary(); got != "ffmpeg" {
		t.Errorf("Binary() = %q, want ffmpeg", got)
	}
	if got := ffmpeg.New(ffmpeg.WithPath("/usr/local/bin/ffmpeg")).Binary(); got != "/usr/local/bin/ffmpeg" {
		t.Errorf("Binary() = %q", got)
	}
}

package mock_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/wavecast/pkg/provider/transcoder"
	"github.com/MrWong99/wavecast/pkg/provider/transcoder/mock"
)

func TestProvider_PassThrough(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	in := []byte("audio")
	out, err := p.Transcode(context.Background(), in, transcoder.Options{Format: transcoder.FormatMP3})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("out = %q, want %q", out, in)
	}
	out[0] = 'X'
	if in[0] != 'a' {
		t.Error("output aliases input")
	}
	if p.CallCount() != 1 || p.Calls[0].Options.Format != transcoder.FormatMP3 {
		t.Errorf("Calls = %+v", p.Calls)
	}
	p.Reset()
	if p.CallCount() != 0 {
		t.Error("Reset did not clear calls")
	}
}

func TestProvider_ErrAndFunc(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	p := &mock.Provider{Err: errBoom}
	if _, err := p.Transcode(context.Background(), nil, transcoder.Options{}); !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want %v", err, errBoom)
	}

	p = &mock.Provider{Func: func(in []byte, _ transcoder.Options) ([]byte, error) {
		return append(in, '!'), nil
	}}
	out, err := p.Transcode(context.Background(), []byte("hi"), transcoder.Options{})
	if err != nil || string(out) != "hi!" {
		t.Errorf("out = %q, %v", out, err)
	}
}

package audio

import (
	"context"
	"os"
	"time"

	"github.com/alnah/go-callrec/internal/ffmpeg"
)

// process is a running FFmpeg capture. *ffmpeg.Process implements it.
type process interface {
	Done() <-chan struct{}
	Err() error
	Stop(timeout time.Duration) error
	Kill()
}

// processStarter launches FFmpeg with the given arguments.
type processStarter interface {
	Start(ffmpegPath string, args []string) (process, error)
}

// outputRunner runs short FFmpeg queries such as device listings.
type outputRunner interface {
	RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error)
}

// soundServer answers device questions on Linux. *PulseServer implements it.
type soundServer interface {
	DefaultSink(ctx context.Context) (string, error)
	DefaultSource(ctx context.Context) (string, error)
	Sources(ctx context.Context) ([]Device, error)
}

// fileStatter retrieves file information.
type fileStatter interface {
	Stat(name string) (os.FileInfo, error)
}

// fileRemover removes files.
type fileRemover interface {
	Remove(name string) error
}

// --- Default implementations using real OS functions ---

// ffmpegStarter implements processStarter using ffmpeg.Start.
type ffmpegStarter struct{}

func (ffmpegStarter) Start(ffmpegPath string, args []string) (process, error) {
	p, err := ffmpeg.Start(ffmpegPath, args)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ffmpegOutputRunner implements outputRunner using the ffmpeg package.
type ffmpegOutputRunner struct{}

func (ffmpegOutputRunner) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return ffmpeg.RunOutput(ctx, ffmpegPath, args)
}

// osFileStatter implements fileStatter using os.Stat.
type osFileStatter struct{}

func (osFileStatter) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// osFileRemover implements fileRemover using os.Remove.
type osFileRemover struct{}

func (osFileRemover) Remove(name string) error {
	return os.Remove(name)
}

package utils

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr (worker/ffmpeg logs)
// This ensures we don't lose critical crash information if a child process dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Logs returns whatever the child wrote to stderr so far.
func (s *SafeCommand) Logs() string {
	if s == nil || s.Stderr == nil {
		return ""
	}
	return s.Stderr.String()
}

// Die is the unified exit strategy for moodsense.
// It prints a formatted error box and dumps child process logs if a SafeCommand is provided.
func Die(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 MOODSENSE ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	if logs := s.Logs(); logs != "" {
		fmt.Fprintf(os.Stderr, "\nCHILD PROCESS LOGS:\n%s\n", logs)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	os.Exit(1)
}

// --- 2. Frame Engine (Shared by camera, video and readiness checks) ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			// Trailing garbage with no frame in it
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// NewCameraArgs builds the FFmpeg arguments for a live capture device.
// format is the ffmpeg input device ("v4l2", "avfoundation", "dshow"), fps the output frame rate.
func NewCameraArgs(format, device string, fps float64) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", device,
		"-vf", "fps=" + strconv.FormatFloat(fps, 'f', -1, 64),
		"-f", "image2pipe", "-vcodec", "mjpeg", "-",
	}
}

// NewDecodeArgs builds the FFmpeg arguments that decode a recorded video file.
// A non-positive fps keeps every frame.
func NewDecodeArgs(inputPath string, fps float64) []string {
	// Using -vcodec mjpeg ensures we get JPEGs Go can split
	args := []string{"-hide_banner", "-loglevel", "error", "-i", inputPath}
	if fps > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64))
	}
	return append(args, "-f", "image2pipe", "-vcodec", "mjpeg", "-")
}

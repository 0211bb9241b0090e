package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/andresmejia3/moodsense/internal/types"
	"github.com/andresmejia3/moodsense/internal/utils" // Using the SafeCommand wrapper
)

// Response status bytes written by python/emotion_worker.py.
const (
	statusOK    = 0
	statusError = 1
)

// ErrWorkerDead is returned for every frame once the Python process has gone away.
var ErrWorkerDead = errors.New("python worker is not running")

// LogicError is a per-frame failure reported by the Python side (bad image, model error).
type LogicError struct {
	Message string
}

func (e *LogicError) Error() string { return "python worker error: " + e.Message }

// Options selects the interpreter and script of the emotion worker.
type Options struct {
	Python string
	Script string
}

// PythonWorker runs the DeepFace emotion model in a child process.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser

	mu   sync.Mutex
	dead error
}

// NewPythonWorker starts the worker process.
func NewPythonWorker(id int, opts Options) (*PythonWorker, error) {
	python := opts.Python
	if python == "" {
		python = "python3"
	}
	script := opts.Script
	if script == "" {
		script = "python/emotion_worker.py"
	}

	// 1. Initialize the SafeCommand; the process lives until Close.
	py := utils.NewSafeCommand(context.Background(), python, "-u", script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close() // Close write end if start fails
		r.Close() // Close read-end too!
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: r,
	}, nil
}

// ProcessFrame sends one JPEG to Python and decodes the faces it found.
//
// Protocol: request [Length][JPEG]; response [Length][Status][Body] where Body is
// {"faces": [...]} for statusOK and [MsgLen][Msg] for statusError.
func (w *PythonWorker) ProcessFrame(data []byte) ([]types.FaceEmotion, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen == 0 {
		return nil, errors.New("python worker sent an empty response")
	}
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(w.DataPipe, respBody); err != nil {
		return nil, err
	}

	switch respBody[0] {
	case statusOK:
		var out struct {
			Faces []types.FaceEmotion `json:"faces"`
		}
		if err := json.Unmarshal(respBody[1:], &out); err != nil {
			return nil, &LogicError{Message: fmt.Sprintf("malformed result: %v", err)}
		}
		return out.Faces, nil
	case statusError:
		msg, err := readMessage(respBody[1:])
		if err != nil {
			return nil, err
		}
		return nil, &LogicError{Message: msg}
	default:
		return nil, fmt.Errorf("python worker sent unknown status %d", respBody[0])
	}
}

func readMessage(b []byte) (string, error) {
	r := bytes.NewReader(b)
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("read error length: %w", err)
	}
	msg := make([]byte, n)
	if _, err := io.ReadFull(r, msg); err != nil {
		return "", fmt.Errorf("read error message: %w", err)
	}
	return string(msg), nil
}

// Classify implements sampler.Classifier. Calls are serialized; a protocol-level
// failure marks the worker dead and every later call fails fast.
func (w *PythonWorker) Classify(ctx context.Context, frame types.Frame) ([]types.FaceEmotion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead != nil {
		return nil, w.dead
	}

	faces, err := w.ProcessFrame(frame.Data)
	if err != nil {
		var logic *LogicError
		if errors.As(err, &logic) {
			return nil, err
		}
		w.dead = fmt.Errorf("%w: %w", ErrWorkerDead, err)
		return nil, w.dead
	}
	if len(faces) == 0 {
		return nil, types.ErrNoFace
	}
	return faces, nil
}

// Logs returns the worker's captured stderr.
func (w *PythonWorker) Logs() string {
	return w.Cmd.Logs()
}

// Close shuts the pipes and waits for the process to exit.
func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}

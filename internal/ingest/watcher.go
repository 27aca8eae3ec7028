package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/snarg/call-engine/internal/model"
	"github.com/snarg/call-engine/internal/store"
)

// Submitter hands a newly created recording to the processing pipeline.
type Submitter interface {
	EnqueueProcessing(ctx context.Context, id uuid.UUID) error
}

// audioExtensions lists the file types the watcher picks up.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".webm": true,
}

// DropMetadata is the optional JSON sidecar next to a dropped audio
// file ("call.wav" + "call.json"). Every field is optional.
type DropMetadata struct {
	OwnerID      string   `json:"owner_id,omitempty"`
	Title        string   `json:"title,omitempty"`
	SourceType   string   `json:"source_type,omitempty"`
	Participants []string `json:"participants,omitempty"`
	RecordedAt   string   `json:"recorded_at,omitempty"` // RFC 3339
}

// Options configures the drop-directory watcher.
type Options struct {
	WatchDir string
	AudioDir string

	// DefaultOwner is used when a dropped file has no sidecar owner.
	DefaultOwner uuid.UUID

	Store     store.Store
	Submitter Submitter
	Log       zerolog.Logger
}

// Watcher monitors a drop directory for new audio files, registers each
// as an uploaded recording, and submits it for processing. This is the
// ingest path for systems that write files instead of calling the API.
type Watcher struct {
	opts Options
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	filesIngested atomic.Int64
	filesSkipped  atomic.Int64
}

// NewWatcher creates a drop-directory watcher. Call Start to begin.
func NewWatcher(opts Options) *Watcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "ingest").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		debounceTimers: make(map[string]*time.Timer),
	}
}

// Start initializes fsnotify on the drop directory, sweeps any files
// already present, and begins watching.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw

	if err := fsw.Add(w.opts.WatchDir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", w.opts.WatchDir, err)
	}

	w.log.Info().Str("watch_dir", w.opts.WatchDir).Msg("ingest watcher started")

	go w.watchLoop()
	go w.sweepExisting()
	return nil
}

// Stop closes the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.cancel()
	if w.watcher != nil {
		w.watcher.Close()
	}
	<-w.done
	w.log.Info().
		Int64("files_ingested", w.filesIngested.Load()).
		Int64("files_skipped", w.filesSkipped.Load()).
		Msg("ingest watcher stopped")
}

// Stats returns ingest counters for the health endpoint.
func (w *Watcher) Stats() (ingested, skipped int64) {
	return w.filesIngested.Load(), w.filesSkipped.Load()
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !audioExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing by 500ms so the file is
// fully written before it is read.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Reset(500 * time.Millisecond)
		return
	}
	w.debounceTimers[path] = time.AfterFunc(500*time.Millisecond, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		if err := w.ProcessFile(w.ctx, path); err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("failed to ingest dropped file")
		}
	})
}

// sweepExisting ingests audio files already sitting in the drop
// directory when the watcher starts.
func (w *Watcher) sweepExisting() {
	_ = filepath.WalkDir(w.opts.WatchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		select {
		case <-w.ctx.Done():
			return filepath.SkipAll
		default:
		}
		if perr := w.ProcessFile(w.ctx, path); perr != nil {
			w.log.Warn().Err(perr).Str("path", path).Msg("failed to ingest existing file")
		}
		return nil
	})
}

// ProcessFile ingests one dropped audio file: read the optional
// sidecar, move the audio into the audio dir under a fresh key, create
// the recording, and submit it for processing.
func (w *Watcher) ProcessFile(ctx context.Context, path string) error {
	meta, sidecarPath := w.readSidecar(path)

	owner := w.opts.DefaultOwner
	if meta.OwnerID != "" {
		parsed, err := uuid.Parse(meta.OwnerID)
		if err != nil {
			w.filesSkipped.Add(1)
			return fmt.Errorf("sidecar owner_id %q: %w", meta.OwnerID, err)
		}
		owner = parsed
	}
	if owner == uuid.Nil {
		w.filesSkipped.Add(1)
		return fmt.Errorf("no owner for dropped file %s", filepath.Base(path))
	}

	sourceType := model.SourceUpload
	if meta.SourceType != "" {
		st := model.SourceType(meta.SourceType)
		if !st.Valid() {
			w.filesSkipped.Add(1)
			return fmt.Errorf("sidecar source_type %q is not valid", meta.SourceType)
		}
		sourceType = st
	}

	recordedAt := time.Now().UTC()
	if meta.RecordedAt != "" {
		if t, err := time.Parse(time.RFC3339, meta.RecordedAt); err == nil {
			recordedAt = t.UTC()
		}
	}

	id := uuid.New()
	ext := strings.ToLower(filepath.Ext(path))
	key := filepath.Join("ingest", recordedAt.Format("2006/01/02"), id.String()+ext)
	if err := w.moveIntoAudioDir(path, key); err != nil {
		return err
	}

	title := meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), ext)
	}

	rec := &model.Recording{
		ID:           id,
		OwnerID:      owner,
		Title:        title,
		SourceType:   sourceType,
		Status:       model.StatusUploaded,
		AudioKey:     key,
		Format:       strings.TrimPrefix(ext, "."),
		Participants: meta.Participants,
		RecordedAt:   recordedAt,
	}
	if err := w.opts.Store.CreateRecording(ctx, rec); err != nil {
		return fmt.Errorf("create recording: %w", err)
	}

	if sidecarPath != "" {
		if err := os.Remove(sidecarPath); err != nil {
			w.log.Warn().Err(err).Str("path", sidecarPath).Msg("failed to remove sidecar")
		}
	}

	if err := w.opts.Submitter.EnqueueProcessing(ctx, rec.ID); err != nil {
		// The recording stays uploaded and can be resubmitted via API.
		w.log.Warn().Err(err).Str("recording_id", rec.ID.String()).Msg("failed to submit dropped file")
	}

	w.filesIngested.Add(1)
	w.log.Info().
		Str("recording_id", rec.ID.String()).
		Str("audio_key", key).
		Str("source_type", string(sourceType)).
		Msg("dropped file ingested")
	return nil
}

// readSidecar loads "<name>.json" next to the audio file, if present.
func (w *Watcher) readSidecar(audioPath string) (DropMetadata, string) {
	var meta DropMetadata
	sidecar := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return meta, ""
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		w.log.Warn().Err(err).Str("path", sidecar).Msg("malformed sidecar, ignoring")
		return DropMetadata{}, ""
	}
	return meta, sidecar
}

// moveIntoAudioDir relocates the dropped file to its audio-dir key,
// falling back to copy+remove across filesystems.
func (w *Watcher) moveIntoAudioDir(src, key string) error {
	dst := filepath.Join(w.opts.AudioDir, key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open dropped file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy audio file: %w", err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

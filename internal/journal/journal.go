// Package journal is a small file-backed datastore for activity output:
// each entry is a JSON metadata file next to its payload.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Mime types written by the chat activity.
const (
	MimeChatLog = "text/plain"
	MimeURIList = "text/uri-list"
)

const (
	metaExt = ".json"
	dataExt = ".data"

	urlTitlePrefix = "URL from Chat: "
)

// ErrNotFound is returned for unknown entry IDs.
var ErrNotFound = errors.New("journal entry not found")

// Entry is the metadata of one journal object.
type Entry struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	TitleSetByUser bool              `json:"title_set_by_user,omitempty"`
	MimeType       string            `json:"mime_type"`
	IconColor      string            `json:"icon_color,omitempty"`
	ShareScope     string            `json:"share_scope,omitempty"`
	Created        time.Time         `json:"created"`
	Modified       time.Time         `json:"modified"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Store keeps entries under a directory.
type Store struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
	log *zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.log = logger
		}
	}
}

// New opens (and creates) the journal directory.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	nop := zerolog.Nop()
	s := &Store{dir: dir, now: time.Now, log: &nop}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir is the journal directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create stores a new entry and returns it with ID and times set.
func (s *Store) Create(meta Entry, data []byte) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	meta.ID = uuid.NewString()
	meta.Created = now
	meta.Modified = now
	if err := s.write(meta, data); err != nil {
		return Entry{}, err
	}
	return meta, nil
}

// Update replaces an existing entry's metadata and payload.
func (s *Store) Update(meta Entry, data []byte) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.get(meta.ID)
	if err != nil {
		return Entry{}, err
	}
	meta.Created = old.Created
	meta.Modified = s.now()
	if err := s.write(meta, data); err != nil {
		return Entry{}, err
	}
	return meta, nil
}

// Get returns an entry's metadata.
func (s *Store) Get(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(id)
}

// Open returns an entry's payload.
func (s *Store) Open(id string) (io.ReadCloser, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, id+dataExt))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// List returns entries, most recently modified first. An empty mimeType
// lists everything.
func (s *Store) List(mimeType string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read journal dir: %w", err)
	}
	var out []Entry
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, metaExt) {
			continue
		}
		id := strings.TrimSuffix(name, metaExt)
		if !validID(id) {
			s.log.Debug().Str("file", name).Msg("skip foreign file in journal dir")
			continue
		}
		e, err := s.get(id)
		if err != nil {
			return nil, err
		}
		if mimeType == "" || e.MimeType == mimeType {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Modified.After(out[j].Modified)
	})
	return out, nil
}

// SaveURL records a link clicked in the conversation.
func (s *Store) SaveURL(url, iconColor string) (Entry, error) {
	return s.Create(Entry{
		Title:          urlTitlePrefix + url,
		TitleSetByUser: true,
		MimeType:       MimeURIList,
		IconColor:      iconColor,
	}, []byte(url+"\r\n"))
}

func (s *Store) get(id string) (Entry, error) {
	if !validID(id) {
		return Entry{}, ErrNotFound
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, id+metaExt))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read entry %s: %w", id, err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, fmt.Errorf("decode entry %s: %w", id, err)
	}
	return e, nil
}

// write stores payload then metadata, each through a rename so readers never
// see a partial file.
func (s *Store) write(meta Entry, data []byte) error {
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := writeFile(filepath.Join(s.dir, meta.ID+dataExt), data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := writeFile(filepath.Join(s.dir, meta.ID+metaExt), raw); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

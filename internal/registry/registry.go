package registry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/ernop/gpt-webdiff/internal/fsutil"
	"github.com/ernop/gpt-webdiff/internal/logger"
	"github.com/ernop/gpt-webdiff/internal/validator"
)

var (
	// ErrJobNotFound is returned when no job has the requested name.
	ErrJobNotFound = errors.New("job not found")
	// ErrDuplicateName is returned when a supplied name is already registered.
	ErrDuplicateName = errors.New("job name already exists")
	// ErrDuplicateURL is returned when the URL is already registered.
	ErrDuplicateURL = errors.New("url already registered")
	// ErrNameCollision is returned when suggested names collide twice in a row.
	ErrNameCollision = errors.New("suggested name collides with an existing job")
	// ErrNameRequired is returned when no name was given and no Namer is available.
	ErrNameRequired = errors.New("job name required")
	// ErrFrequencyLimit is returned when a frequency change would pass either end.
	ErrFrequencyLimit = errors.New("no further frequency in that direction")
)

// Namer suggests a job name for a URL. taken lists names already in use.
type Namer interface {
	SuggestName(ctx context.Context, url string, taken []string) (string, error)
}

// AddRequest carries the user input for Add. Empty fields take defaults.
type AddRequest struct {
	URL       string
	Name      string
	Frequency string
}

// Registry manages the job file and its backups.
type Registry struct {
	Path      string           // Registry file
	BackupDir string           // Directory receiving a copy before every rewrite
	Now       func() time.Time // Clock used for created_at and backup names

	log logger.Logger
}

// NewRegistry creates a registry for the file at path.
func NewRegistry(path, backupDir string, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		Path:      path,
		BackupDir: backupDir,
		Now:       time.Now,
		log:       log,
	}
}

// entry is one file line. raw is written back verbatim unless the job
// was created or changed in this session, in which case raw is empty.
type entry struct {
	raw string
	job *Job
}

type document struct {
	entries []entry
	// noFinalNewline is set when the file read had content but no
	// trailing newline; rewrites keep it that way.
	noFinalNewline bool
}

func (d document) jobs() []Job {
	jobs := make([]Job, 0, len(d.entries))
	for _, e := range d.entries {
		if e.job != nil {
			jobs = append(jobs, *e.job)
		}
	}
	return jobs
}

func (d document) find(name string) int {
	for i, e := range d.entries {
		if e.job != nil && e.job.Name == name {
			return i
		}
	}
	return -1
}

func (d document) render() []byte {
	var buf bytes.Buffer
	for i, e := range d.entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		if e.job != nil && e.raw == "" {
			buf.WriteString(e.job.Line())
		} else {
			buf.WriteString(e.raw)
		}
	}
	if len(d.entries) > 0 && !d.noFinalNewline {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// read parses the registry file. A missing file is an empty registry.
// Malformed lines are kept verbatim and logged.
func (r *Registry) read() (document, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, errors.Wrap(err, "read registry")
	}

	doc := document{noFinalNewline: len(data) > 0 && !bytes.HasSuffix(data, []byte("\n"))}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return doc, nil
	}
	for n, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, "\r")
		job, ok, perr := parseLine(raw)
		if perr != nil {
			r.log.Warn("Skipping malformed registry line",
				logger.Int("line", n+1),
				logger.String("content", raw),
				logger.Error(perr))
		}
		e := entry{raw: raw}
		if ok {
			e.job = &job
		}
		doc.entries = append(doc.entries, e)
	}
	return doc, nil
}

// Load returns every valid job in file order.
func (r *Registry) Load() ([]Job, error) {
	doc, err := r.read()
	if err != nil {
		return nil, err
	}
	return doc.jobs(), nil
}

// Get returns the job with the given name.
func (r *Registry) Get(name string) (Job, error) {
	doc, err := r.read()
	if err != nil {
		return Job{}, err
	}
	i := doc.find(name)
	if i < 0 {
		return Job{}, errors.Wrapf(ErrJobNotFound, "%q", name)
	}
	return *doc.entries[i].job, nil
}

// Raw returns the registry file contents.
func (r *Registry) Raw() ([]byte, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read registry")
	}
	return data, nil
}

// Add validates req and appends a new job stamped with the current time.
// Nothing is written when validation or naming fails.
func (r *Registry) Add(ctx context.Context, req AddRequest, namer Namer) (Job, error) {
	url := validator.NormalizeURL(req.URL)
	if verr := validator.ValidateURL(url); verr != nil {
		return Job{}, verr
	}

	freq := DefaultFrequency
	if req.Frequency != "" {
		f, err := ParseFrequency(req.Frequency)
		if err != nil {
			return Job{}, err
		}
		freq = f
	}

	if req.Name != "" {
		if verr := validator.ValidateName(req.Name); verr != nil {
			return Job{}, verr
		}
	}

	doc, err := r.read()
	if err != nil {
		return Job{}, err
	}

	taken := make([]string, 0, len(doc.entries))
	for _, j := range doc.jobs() {
		if j.URL == url {
			return Job{}, errors.Wrapf(ErrDuplicateURL, "%s is already monitored as %q", url, j.Name)
		}
		taken = append(taken, j.Name)
	}

	name := req.Name
	if name == "" {
		name, err = r.suggestName(ctx, doc, url, taken, namer)
		if err != nil {
			return Job{}, err
		}
	} else if doc.find(name) >= 0 {
		return Job{}, errors.Wrapf(ErrDuplicateName, "%q", name)
	}

	job := Job{
		Name:      name,
		URL:       url,
		Frequency: freq,
		CreatedAt: r.Now().Truncate(time.Second),
	}
	doc.entries = append(doc.entries, entry{job: &job})

	if err := r.rewrite(doc); err != nil {
		return Job{}, err
	}

	r.log.Info("Job added",
		logger.String("job", job.Name),
		logger.String("url", job.URL),
		logger.String("frequency", string(job.Frequency)))
	return job, nil
}

// suggestName asks namer for a name, retrying once when the first
// suggestion is already taken.
func (r *Registry) suggestName(ctx context.Context, doc document, url string, taken []string, namer Namer) (string, error) {
	if namer == nil {
		return "", ErrNameRequired
	}

	var last string
	for attempt := 1; attempt <= 2; attempt++ {
		name, err := namer.SuggestName(ctx, url, taken)
		if err != nil {
			return "", errors.Wrap(err, "suggest job name")
		}
		if verr := validator.ValidateName(name); verr != nil {
			return "", errors.Wrap(verr, "suggested name rejected")
		}
		if doc.find(name) < 0 {
			r.log.Info("Using suggested job name", logger.String("job", name), logger.Int("attempt", attempt))
			return name, nil
		}
		r.log.Warn("Suggested job name already taken", logger.String("job", name), logger.Int("attempt", attempt))
		last = name
	}
	return "", errors.Wrapf(ErrNameCollision, "%q", last)
}

// Remove deletes the named job. An unknown name returns ErrJobNotFound
// and leaves the file and backups untouched.
func (r *Registry) Remove(name string) (Job, error) {
	doc, err := r.read()
	if err != nil {
		return Job{}, err
	}
	i := doc.find(name)
	if i < 0 {
		return Job{}, errors.Wrapf(ErrJobNotFound, "%q", name)
	}
	removed := *doc.entries[i].job
	doc.entries = append(doc.entries[:i], doc.entries[i+1:]...)

	if err := r.rewrite(doc); err != nil {
		return Job{}, err
	}

	r.log.Info("Job removed", logger.String("job", name))
	return removed, nil
}

// ChangeFrequency moves the named job one step in direction d and returns
// the updated job with its previous frequency. Moving past either end of
// the ordering returns ErrFrequencyLimit without touching the file.
func (r *Registry) ChangeFrequency(name string, d Direction) (Job, Frequency, error) {
	doc, err := r.read()
	if err != nil {
		return Job{}, "", err
	}
	i := doc.find(name)
	if i < 0 {
		return Job{}, "", errors.Wrapf(ErrJobNotFound, "%q", name)
	}

	job := *doc.entries[i].job
	old := job.Frequency
	next, ok := old.Step(d)
	if !ok {
		return job, old, errors.Wrapf(ErrFrequencyLimit, "cannot %s %q beyond %s", d, name, old)
	}
	job.Frequency = next
	doc.entries[i] = entry{job: &job}

	if err := r.rewrite(doc); err != nil {
		return Job{}, "", err
	}

	r.log.Info("Job frequency changed",
		logger.String("job", name),
		logger.String("from", string(old)),
		logger.String("to", string(next)))
	return job, old, nil
}

// List returns jobs ordered by key. SortNone keeps file order.
func (r *Registry) List(key SortKey) ([]Job, error) {
	jobs, err := r.Load()
	if err != nil {
		return nil, err
	}
	return SortJobs(jobs, key), nil
}

// SaveSorted rewrites the file with jobs ordered by key. Comment and
// malformed lines keep their place at the top of the file.
func (r *Registry) SaveSorted(key SortKey) error {
	if key == SortNone {
		return &validator.ValidationError{Field: "sort_by", Allowed: SortKeyNames()}
	}

	doc, err := r.read()
	if err != nil {
		return err
	}

	var sorted document
	for _, e := range doc.entries {
		if e.job == nil {
			sorted.entries = append(sorted.entries, e)
		}
	}
	raws := make(map[string]string)
	for _, e := range doc.entries {
		if e.job != nil {
			raws[e.job.Name] = e.raw
		}
	}
	for _, job := range SortJobs(doc.jobs(), key) {
		job := job
		sorted.entries = append(sorted.entries, entry{raw: raws[job.Name], job: &job})
	}

	if err := r.rewrite(sorted); err != nil {
		return err
	}

	r.log.Info("Jobs sorted and saved", logger.String("sort_by", string(key)))
	return nil
}

// Search returns jobs whose name or URL contains query, ignoring case.
func (r *Registry) Search(query string) ([]Job, error) {
	jobs, err := r.Load()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matches []Job
	for _, j := range jobs {
		if strings.Contains(strings.ToLower(j.Name), q) || strings.Contains(strings.ToLower(j.URL), q) {
			matches = append(matches, j)
		}
	}
	return matches, nil
}

// rewrite backs up the current file, then replaces it atomically.
func (r *Registry) rewrite(doc document) error {
	if err := r.backup(); err != nil {
		return err
	}
	return fsutil.WriteFile(r.Path, doc.render(), 0644)
}

// backup copies the registry into BackupDir as gptcron_backup_<stamp>.
// Same-second collisions get a numeric suffix.
func (r *Registry) backup() error {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read registry for backup")
	}

	// Create directory if needed
	if err := os.MkdirAll(r.BackupDir, 0755); err != nil {
		return errors.Wrap(err, "create backup dir")
	}

	base := filepath.Join(r.BackupDir, "gptcron_backup_"+r.Now().Format(TimestampLayout))
	path := base
	for n := 1; ; n++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			_, werr := f.Write(data)
			cerr := f.Close()
			if werr != nil {
				return errors.Wrap(werr, "write backup")
			}
			if cerr != nil {
				return errors.Wrap(cerr, "close backup")
			}
			r.log.Debug("Registry backup created", logger.String("path", path))
			return nil
		}
		if !os.IsExist(err) {
			return errors.Wrap(err, "create backup")
		}
		path = base + "-" + strconv.Itoa(n)
	}
}

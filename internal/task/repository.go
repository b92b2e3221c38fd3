package task

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

// Repository persists the task set between daemon runs.
type Repository interface {
	Load() ([]*Task, error)
	Save(tasks []*Task) error
}

// DefaultTaskFile is where the daemon keeps its task state.
const DefaultTaskFile = ".stagehand/tasks.yaml"

// YAMLRepository stores the task set as one YAML document. The file is
// hand-editable while the daemon is down.
type YAMLRepository struct {
	path string
	mu   sync.Mutex
}

func NewYAMLRepository(path string) *YAMLRepository {
	if path == "" {
		path = DefaultTaskFile
	}
	return &YAMLRepository{path: path}
}

type taskFile struct {
	Tasks []*Task `yaml:"tasks"`
}

func (r *YAMLRepository) Load() ([]*Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerr.Errorf(cerr.Internal, err, "failed to read task file %s", r.path)
	}

	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, cerr.Errorf(cerr.InvalidArgument, err, "failed to parse task file %s", r.path)
	}
	return file.Tasks, nil
}

func (r *YAMLRepository) Save(tasks []*Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := append([]*Task(nil), tasks...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	data, err := yaml.Marshal(taskFile{Tasks: sorted})
	if err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to marshal task file")
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to create state directory")
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to write task file")
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to replace task file")
	}
	return nil
}

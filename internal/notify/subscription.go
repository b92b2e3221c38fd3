package notify

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/stagecraft/stagehand/pkg/cerr"
)

// Subscription is one browser push endpoint.
type Subscription struct {
	ID        string    `yaml:"id" json:"id"`
	Endpoint  string    `yaml:"endpoint" json:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key" json:"p256dhKey"`
	AuthKey   string    `yaml:"auth_key" json:"authKey"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
}

// SubscriptionStore persists push subscriptions as YAML.
type SubscriptionStore struct {
	path string

	mu   sync.Mutex
	subs map[string]*Subscription
}

type subscriptionFile struct {
	Subscriptions []*Subscription `yaml:"subscriptions"`
}

func NewSubscriptionStore(path string) (*SubscriptionStore, error) {
	s := &SubscriptionStore{path: path, subs: make(map[string]*Subscription)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, cerr.Errorf(cerr.Internal, err, "failed to read subscriptions %s", path)
	}
	var file subscriptionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, cerr.Errorf(cerr.InvalidArgument, err, "failed to parse subscriptions %s", path)
	}
	for _, sub := range file.Subscriptions {
		s.subs[sub.ID] = sub
	}
	return s, nil
}

// Add registers an endpoint. Re-adding the same endpoint replaces its keys.
func (s *SubscriptionStore) Add(endpoint, p256dh, auth string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if sub.Endpoint == endpoint {
			sub.P256dhKey = p256dh
			sub.AuthKey = auth
			return sub, s.saveLocked()
		}
	}

	sub := &Subscription{
		ID:        ulid.Make().String(),
		Endpoint:  endpoint,
		P256dhKey: p256dh,
		AuthKey:   auth,
		CreatedAt: time.Now(),
	}
	s.subs[sub.ID] = sub
	return sub, s.saveLocked()
}

func (s *SubscriptionStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return cerr.Errorf(cerr.NotFound, nil, "subscription %s not found", id)
	}
	delete(s.subs, id)
	return s.saveLocked()
}

func (s *SubscriptionStore) List() []*Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}

func (s *SubscriptionStore) saveLocked() error {
	file := subscriptionFile{Subscriptions: make([]*Subscription, 0, len(s.subs))}
	for _, sub := range s.subs {
		file.Subscriptions = append(file.Subscriptions, sub)
	}
	data, err := yaml.Marshal(file)
	if err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to marshal subscriptions")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to create state directory")
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return cerr.Errorf(cerr.Internal, err, "failed to write subscriptions")
	}
	return nil
}

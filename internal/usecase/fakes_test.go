package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/semmidev/wpfleet/internal/domain"
)

var nopLogger = zap.NewNop().Sugar()

// memStorage is an in-memory Storage. The fail* maps make the named
// operation fail for a given artifact name.
type memStorage struct {
	mu          sync.Mutex
	objects     map[string]map[string][]byte
	failUpload  map[string]bool
	failCopyDst map[string]bool
	failDelete  map[string]bool
	failList    bool
	copyErrRate func() bool
}

func newMemStorage() *memStorage {
	return &memStorage{
		objects:     make(map[string]map[string][]byte),
		failUpload:  make(map[string]bool),
		failCopyDst: make(map[string]bool),
		failDelete:  make(map[string]bool),
	}
}

func (m *memStorage) Type() string { return "mem" }

func (m *memStorage) put(prefix, name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[prefix] == nil {
		m.objects[prefix] = make(map[string][]byte)
	}
	m.objects[prefix][name] = data
}

func (m *memStorage) Upload(ctx context.Context, localPath, prefix, name string) error {
	if m.failUpload[name] {
		return errors.New("injected upload failure")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.put(prefix, name, data)
	return nil
}

func (m *memStorage) Download(ctx context.Context, prefix, name, destPath string) error {
	m.mu.Lock()
	data, ok := m.objects[prefix][name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("not found: %s", name)
	}
	return os.WriteFile(destPath, data, 0600)
}

func (m *memStorage) List(ctx context.Context, prefix string) ([]string, error) {
	if m.failList {
		return nil, errors.New("injected list failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.objects[prefix] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStorage) Copy(ctx context.Context, prefix, src, dst string) error {
	if m.failCopyDst[dst] || (m.copyErrRate != nil && m.copyErrRate()) {
		return errors.New("injected copy failure")
	}
	m.mu.Lock()
	data, ok := m.objects[prefix][src]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("not found: %s", src)
	}
	m.put(prefix, dst, data)
	return nil
}

func (m *memStorage) Delete(ctx context.Context, prefix, name string) error {
	if m.failDelete[name] {
		return errors.New("injected delete failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[prefix][name]; !ok {
		return fmt.Errorf("not found: %s", name)
	}
	delete(m.objects[prefix], name)
	return nil
}

func (m *memStorage) names(prefix string) []string {
	names, _ := m.List(context.Background(), prefix)
	return names
}

// count returns how many artifacts of kind and class the prefix holds.
func (m *memStorage) count(prefix string, kind domain.ArtifactKind, class domain.BackupClass) int {
	n := 0
	for _, name := range m.names(prefix) {
		a, err := domain.ParseArtifactName(name)
		if err == nil && a.Kind == kind && a.Class == class {
			n++
		}
	}
	return n
}

// seedSet stores both halves of a backup event.
func (m *memStorage) seedSet(set domain.BackupSet) {
	for _, a := range set.Artifacts() {
		m.put(a.Domain, a.Name(), []byte(a.Name()))
	}
}

type fakeDumper struct {
	content string
	fail    map[string]error
}

func (f *fakeDumper) Dump(ctx context.Context, creds domain.Credentials, w io.Writer) error {
	if err := f.fail[creds.Name]; err != nil {
		return err
	}
	_, err := io.WriteString(w, f.content)
	return err
}

type failingArchiver struct{}

func (failingArchiver) Archive(ctx context.Context, srcDir string, w io.Writer) error {
	io.WriteString(w, "partial")
	return errors.New("tar: file changed as we read it")
}

func (failingArchiver) Extract(ctx context.Context, r io.Reader, destDir string) error {
	return errors.New("not implemented")
}

// blockingArchiver holds until its context is cancelled, like a long
// archive of a large uploads tree.
type blockingArchiver struct {
	cancelled chan struct{}
}

func (b blockingArchiver) Archive(ctx context.Context, srcDir string, w io.Writer) error {
	<-ctx.Done()
	close(b.cancelled)
	return ctx.Err()
}

func (blockingArchiver) Extract(ctx context.Context, r io.Reader, destDir string) error {
	return errors.New("not implemented")
}

// blockingDumper holds until its context is cancelled.
type blockingDumper struct{}

func (blockingDumper) Dump(ctx context.Context, creds domain.Credentials, w io.Writer) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeProvisioner struct {
	databases []string
	users     []domain.Credentials
	imported  map[string]string
}

func (f *fakeProvisioner) EnsureDatabase(ctx context.Context, name string) error {
	f.databases = append(f.databases, name)
	return nil
}

func (f *fakeProvisioner) EnsureUser(ctx context.Context, creds domain.Credentials) error {
	f.users = append(f.users, creds)
	return nil
}

func (f *fakeProvisioner) Import(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.imported == nil {
		f.imported = make(map[string]string)
	}
	f.imported[name] = string(data)
	return nil
}

func (f *fakeProvisioner) calls() int {
	return len(f.databases) + len(f.users) + len(f.imported)
}

type fakeTransport struct {
	checked  []string
	pushed   []string
	checkErr error
	err      error
}

func (f *fakeTransport) Check(ctx context.Context, host string, port int) error {
	f.checked = append(f.checked, fmt.Sprintf("%s:%d", host, port))
	return f.checkErr
}

func (f *fakeTransport) Push(ctx context.Context, localRoot, host string, port int, remotePath string) (*domain.TransferResult, error) {
	f.pushed = append(f.pushed, fmt.Sprintf("%s -> %s:%d%s", localRoot, host, port, remotePath))
	if f.err != nil {
		return nil, f.err
	}
	return &domain.TransferResult{Files: 2, Bytes: 100}, nil
}

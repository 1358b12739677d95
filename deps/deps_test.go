package deps

import (
	"archive/zip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stevecastle/lkgquilt/downloads"
	"github.com/stevecastle/lkgquilt/platform"
)

// mockDependency creates a test dependency with the given check result
func mockDependency(id string, exists bool, version string, checkErr error) *Dependency {
	return &Dependency{
		ID:            id,
		Name:          id + " Name",
		Description:   id + " Description",
		TargetDir:     "/test/" + id,
		LatestVersion: "1.0.0",
		Check: func(ctx context.Context) (bool, string, error) {
			return exists, version, checkErr
		},
		DownloadFn: func(ctx context.Context, url string, progress downloads.ProgressCallback) error {
			return nil
		},
	}
}

// withRegistry swaps in an empty registry for the duration of the test.
func withRegistry(t *testing.T, deps ...*Dependency) {
	t.Helper()
	mu.Lock()
	orig := registry
	registry = make(DependencyRegistry)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		registry = orig
		mu.Unlock()
	})
	for _, d := range deps {
		Register(d)
	}
}

// withTempMetadata points the metadata singleton at a temp file.
func withTempMetadata(t *testing.T) *MetadataStore {
	t.Helper()
	GetMetadataStore()
	orig := metadataStore
	s := NewMetadataStore(filepath.Join(t.TempDir(), "dependencies.json"))
	metadataStore = s
	t.Cleanup(func() { metadataStore = orig })
	return s
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("bin"), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestFFmpegRegistered(t *testing.T) {
	dep, ok := Get(FFmpegID)
	if !ok {
		t.Fatal("ffmpeg should be registered at init")
	}
	if len(dep.Executables) != 2 || dep.Executables[0] != "ffmpeg" || dep.Executables[1] != "ffprobe" {
		t.Errorf("Executables = %v; want [ffmpeg ffprobe]", dep.Executables)
	}
	if dep.Check == nil || dep.DownloadFn == nil {
		t.Error("ffmpeg dependency should have Check and DownloadFn")
	}
}

// TestRegisterAndGet tests dependency registration and retrieval
func TestRegisterAndGet(t *testing.T) {
	withRegistry(t, mockDependency("test-dep", true, "1.0.0", nil))

	retrieved, ok := Get("test-dep")
	if !ok {
		t.Fatal("Get() should find registered dependency")
	}
	if retrieved.Name != "test-dep Name" {
		t.Errorf("Retrieved dependency Name = %q; want %q", retrieved.Name, "test-dep Name")
	}

	if _, ok := Get("nonexistent-dependency-xyz"); ok {
		t.Error("Get() should return false for nonexistent dependency")
	}
}

func TestGetAllSorted(t *testing.T) {
	withRegistry(t,
		mockDependency("dep-c", true, "1", nil),
		mockDependency("dep-a", true, "1", nil),
		mockDependency("dep-b", false, "", nil),
	)

	all := GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() returned %d dependencies; want 3", len(all))
	}
	for i, want := range []string{"dep-a", "dep-b", "dep-c"} {
		if all[i].ID != want {
			t.Errorf("GetAll()[%d].ID = %q; want %q", i, all[i].ID, want)
		}
	}
}

func TestGetMissing(t *testing.T) {
	withRegistry(t,
		mockDependency("present", true, "1", nil),
		mockDependency("absent", false, "", nil),
		mockDependency("broken", true, "1", errors.New("check failed")),
	)

	missing := GetMissing(context.Background())
	if len(missing) != 2 {
		t.Fatalf("GetMissing() returned %d; want 2", len(missing))
	}
	if missing[0].ID != "absent" || missing[1].ID != "broken" {
		t.Errorf("GetMissing() = [%s %s]; want [absent broken]", missing[0].ID, missing[1].ID)
	}
}

func TestGetInstallPath(t *testing.T) {
	withRegistry(t, mockDependency("tool", true, "1", nil))
	store := withTempMetadata(t)

	got, err := GetInstallPath("tool")
	if err != nil || got != "/test/tool" {
		t.Errorf("GetInstallPath() = %q, %v; want /test/tool", got, err)
	}

	store.Update("tool", DependencyMetadata{InstallPath: "/custom/tool"})
	got, _ = GetInstallPath("tool")
	if got != "/custom/tool" {
		t.Errorf("GetInstallPath() = %q; want metadata path /custom/tool", got)
	}

	if _, err := GetInstallPath("unknown"); err == nil {
		t.Error("GetInstallPath() should fail for unknown dependency")
	}
}

func TestResolveExecutablePrecedence(t *testing.T) {
	dir := t.TempDir()
	dep := mockDependency("tool", true, "1", nil)
	dep.TargetDir = filepath.Join(dir, "installed")
	withRegistry(t, dep)
	withTempMetadata(t)

	installed := filepath.Join(dep.TargetDir, GetExecutableName("quilt-fake-tool"))
	touch(t, installed)

	got, err := ResolveExecutable("tool", "quilt-fake-tool")
	if err != nil || got != installed {
		t.Errorf("ResolveExecutable() = %q, %v; want installed %q", got, err, installed)
	}

	configured := filepath.Join(dir, "configured", "quilt-fake-tool")
	touch(t, configured)
	SetExecutableOverride("quilt-fake-tool", configured)
	defer SetExecutableOverride("quilt-fake-tool", "")

	got, err = ResolveExecutable("tool", "quilt-fake-tool")
	if err != nil || got != configured {
		t.Errorf("ResolveExecutable() = %q, %v; want configured %q", got, err, configured)
	}
}

func TestResolveExecutableMissingOverride(t *testing.T) {
	withRegistry(t, mockDependency("tool", true, "1", nil))
	withTempMetadata(t)

	SetExecutableOverride("quilt-fake-tool", filepath.Join(t.TempDir(), "nope"))
	defer SetExecutableOverride("quilt-fake-tool", "")

	_, err := ResolveExecutable("tool", "quilt-fake-tool")
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("ResolveExecutable() error = %v; want missing configured path", err)
	}
}

func TestResolveExecutableNotFound(t *testing.T) {
	withRegistry(t, mockDependency("tool", true, "1", nil))
	withTempMetadata(t)

	if _, err := ResolveExecutable("tool", "quilt-definitely-not-installed"); err == nil {
		t.Error("ResolveExecutable() should fail when nothing resolves")
	}
	if _, err := GetExec(context.Background(), "tool", "quilt-definitely-not-installed"); err == nil {
		t.Error("GetExec() should fail when nothing resolves")
	}
}

func TestGetExecutablePathUsesMetadata(t *testing.T) {
	withRegistry(t, mockDependency("tool", true, "1", nil))
	store := withTempMetadata(t)

	name := GetExecutableName("ffprobe")
	store.Update("tool", DependencyMetadata{Files: map[string]FileInfo{name: {Path: "/elsewhere/" + name}}})

	got, err := GetExecutablePath("tool", "ffprobe")
	if err != nil || got != "/elsewhere/"+name {
		t.Errorf("GetExecutablePath() = %q, %v; want /elsewhere/%s", got, err, name)
	}
}

func TestEnsureAvailable(t *testing.T) {
	dep := mockDependency("tool", true, "1", nil)
	dep.TargetDir = t.TempDir()
	dep.Executables = []string{"quilt-fake-a", "quilt-fake-b"}
	withRegistry(t, dep)
	withTempMetadata(t)

	touch(t, filepath.Join(dep.TargetDir, GetExecutableName("quilt-fake-a")))
	err := EnsureAvailable("tool")
	if err == nil || !strings.Contains(err.Error(), "quilt-fake-b") {
		t.Errorf("EnsureAvailable() error = %v; want it to name quilt-fake-b", err)
	}

	touch(t, filepath.Join(dep.TargetDir, GetExecutableName("quilt-fake-b")))
	if err := EnsureAvailable("tool"); err != nil {
		t.Errorf("EnsureAvailable() error = %v; want nil", err)
	}

	if err := EnsureAvailable("unknown"); err == nil {
		t.Error("EnsureAvailable() should fail for unknown dependency")
	}
}

func TestParseFFmpegVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023", "6.1.1-3ubuntu5"},
		{"ffmpeg version N-122344-g649a4e98f4-20260103 Copyright", "N-122344-g649a4e98f4-20260103"},
		{"ffprobe version 7.0 Copyright", "7.0"},
		{"something else entirely", "unknown"},
	}
	for _, tt := range tests {
		if got := parseFFmpegVersion(tt.output); got != tt.want {
			t.Errorf("parseFFmpegVersion(%q) = %q; want %q", tt.output, got, tt.want)
		}
	}
}

func TestFFmpegDownloadURL(t *testing.T) {
	tests := []struct {
		goos, goarch string
		suffix       string
	}{
		{"linux", "amd64", "linux64-gpl.tar.xz"},
		{"linux", "arm64", "linuxarm64-gpl.tar.xz"},
		{"windows", "amd64", "win64-gpl.zip"},
		{"windows", "arm64", "winarm64-gpl.zip"},
		{"darwin", "arm64", ""},
	}
	for _, tt := range tests {
		got := ffmpegDownloadURL(tt.goos, tt.goarch)
		if tt.suffix == "" {
			if got != "" {
				t.Errorf("ffmpegDownloadURL(%s, %s) = %q; want empty", tt.goos, tt.goarch, got)
			}
			continue
		}
		if !strings.HasSuffix(got, tt.suffix) {
			t.Errorf("ffmpegDownloadURL(%s, %s) = %q; want suffix %q", tt.goos, tt.goarch, got, tt.suffix)
		}
	}
}

func TestMetadataStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dependencies.json")
	store := NewMetadataStore(path)

	if _, ok := store.Get("ffmpeg"); ok {
		t.Error("new store should have no ffmpeg metadata")
	}

	store.Update("ffmpeg", DependencyMetadata{
		InstalledVersion: "7.0",
		Status:           StatusInstalled,
		Files:            map[string]FileInfo{"ffmpeg": {Path: "/x/ffmpeg", Size: 42}},
	})
	if err := store.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := LoadMetadata(path)
	if err != nil {
		t.Fatalf("LoadMetadata() error = %v", err)
	}
	meta, ok := loaded.Get("ffmpeg")
	if !ok || meta.InstalledVersion != "7.0" || meta.Files["ffmpeg"].Size != 42 {
		t.Errorf("loaded metadata = %+v, %v", meta, ok)
	}

	loaded.UpdateStatus("ffmpeg", StatusOutdated)
	if meta, _ := loaded.Get("ffmpeg"); meta.Status != StatusOutdated || meta.InstalledVersion != "7.0" {
		t.Errorf("metadata after UpdateStatus = %+v; want outdated 7.0", meta)
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	store, err := LoadMetadata(filepath.Join(t.TempDir(), "none.json"))
	if err != nil {
		t.Fatalf("LoadMetadata() error = %v", err)
	}
	if len(store.Dependencies) != 0 {
		t.Errorf("Dependencies = %v; want empty", store.Dependencies)
	}
}

func TestInstallURLSelection(t *testing.T) {
	var gotURL string
	dep := mockDependency("tool", false, "", nil)
	dep.DownloadURL = "https://example.com/default.zip"
	dep.DownloadFn = func(ctx context.Context, url string, progress downloads.ProgressCallback) error {
		gotURL = url
		return nil
	}
	withRegistry(t, dep)
	withTempMetadata(t)

	if err := Install(context.Background(), "tool", "", nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if gotURL != dep.DownloadURL {
		t.Errorf("Install() used %q; want default %q", gotURL, dep.DownloadURL)
	}

	if err := Install(context.Background(), "tool", "https://mirror/ffmpeg.7z", nil); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if gotURL != "https://mirror/ffmpeg.7z" {
		t.Errorf("Install() used %q; want override", gotURL)
	}
}

func TestInstallWithoutURL(t *testing.T) {
	withRegistry(t, mockDependency("tool", false, "", nil))
	withTempMetadata(t)

	if err := Install(context.Background(), "tool", "", nil); err == nil {
		t.Error("Install() should fail when no URL is known")
	}
	if err := Install(context.Background(), "unknown", "", nil); err == nil {
		t.Error("Install() should fail for unknown dependency")
	}
}

func TestInstallFailureResetsStatus(t *testing.T) {
	dep := mockDependency("tool", false, "", nil)
	dep.DownloadFn = func(ctx context.Context, url string, progress downloads.ProgressCallback) error {
		return errors.New("network down")
	}
	withRegistry(t, dep)
	store := withTempMetadata(t)

	err := Install(context.Background(), "tool", "https://example.com/x.zip", nil)
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Errorf("Install() error = %v; want network down", err)
	}
	if meta, _ := store.Get("tool"); meta.Status != StatusNotInstalled {
		t.Errorf("status after failed install = %s; want %s", meta.Status, StatusNotInstalled)
	}
}

func TestDownloadFFmpegFromArchive(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake binaries are shell scripts")
	}

	script := "#!/bin/sh\necho 'ffmpeg version 7.1-test Copyright'\n"
	archive := filepath.Join(t.TempDir(), "build.zip")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for _, name := range []string{"ffmpeg-build/bin/ffmpeg", "ffmpeg-build/bin/ffprobe", "ffmpeg-build/LICENSE"} {
		hdr := &zip.FileHeader{Name: name}
		hdr.SetMode(0755)
		w, _ := zw.CreateHeader(hdr)
		w.Write([]byte(script))
	}
	zw.Close()
	f.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, archive)
	}))
	defer srv.Close()

	staging := filepath.Join(t.TempDir(), "staging")
	t.Setenv("TMPDIR", staging)
	t.Setenv("XDG_RUNTIME_DIR", staging)

	target := filepath.Join(t.TempDir(), "ffmpeg")
	withRegistry(t, &Dependency{
		ID:            FFmpegID,
		Name:          "FFmpeg",
		TargetDir:     target,
		LatestVersion: "latest",
		Executables:   []string{"ffmpeg", "ffprobe"},
		Check:         checkFFmpeg,
		DownloadFn:    downloadFFmpeg,
	})
	store := withTempMetadata(t)

	var statuses []downloads.DownloadStatus
	err = Install(context.Background(), FFmpegID, srv.URL+"/build.zip", func(p downloads.Progress) {
		statuses = append(statuses, p.Status)
	})
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, "LICENSE")); !os.IsNotExist(err) {
		t.Error("only the executables should be extracted")
	}
	for _, dir := range []string{target, platform.GetTempDir()} {
		if _, err := os.Stat(filepath.Join(dir, "ffmpeg-download.zip")); !os.IsNotExist(err) {
			t.Errorf("the downloaded archive should not be left in %s", dir)
		}
	}

	meta, ok := store.Get(FFmpegID)
	if !ok || meta.Status != StatusInstalled {
		t.Fatalf("metadata = %+v, %v; want installed", meta, ok)
	}
	if meta.InstalledVersion != "7.1-test" {
		t.Errorf("InstalledVersion = %q; want 7.1-test", meta.InstalledVersion)
	}
	if meta.Files["ffprobe"].Path != filepath.Join(target, "ffprobe") {
		t.Errorf("ffprobe path = %q", meta.Files["ffprobe"].Path)
	}

	exists, version, err := checkFFmpeg(context.Background())
	if err != nil || !exists || version != "7.1-test" {
		t.Errorf("checkFFmpeg() = %v, %q, %v; want true, 7.1-test, nil", exists, version, err)
	}

	if len(statuses) == 0 || statuses[len(statuses)-1] != downloads.StatusComplete {
		t.Errorf("last progress status = %v; want complete", statuses)
	}
}

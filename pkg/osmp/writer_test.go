package osmp

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterScenarioALayout(t *testing.T) {
	t.Parallel()

	b := buildContainer(t, scenarioA, nil)
	if len(b) != 267 {
		t.Fatalf("file size: got %d want 267", len(b))
	}
	le := binary.LittleEndian
	if string(b[:8]) != MagicOSMP || le.Uint32(b[8:]) != ContainerVersion {
		t.Fatalf("master header: %q version %d", b[:8], le.Uint32(b[8:]))
	}
	for _, f := range []struct {
		name string
		off  int
		want uint64
	}{
		{"meta_offset", 16, 80},
		{"meta_size", 24, 0},
		{"instfs_offset", 32, 80},
		{"instfs_size", 40, 187},
	} {
		if got := le.Uint64(b[f.off:]); got != f.want {
			t.Fatalf("%s: got %d want %d", f.name, got, f.want)
		}
	}

	inst := b[80:]
	if string(inst[:6]) != MagicInstFS || le.Uint32(inst[8:]) != InstFSVersion {
		t.Fatalf("instfs header: %q version %#x", inst[:6], le.Uint32(inst[8:]))
	}
	if le.Uint32(inst[12:]) != 2 || le.Uint64(inst[16:]) != instfsHeaderSize {
		t.Fatalf("instfs table: count %d offset %d", le.Uint32(inst[12:]), le.Uint64(inst[16:]))
	}
	wantEntries := []struct{ name, data, size uint64 }{
		{168, 179, 3},
		{173, 182, 5},
	}
	for i, w := range wantEntries {
		e := inst[instfsHeaderSize+i*instrumentEntrySize:]
		if le.Uint64(e[0:]) != w.name || le.Uint64(e[8:]) != w.data || le.Uint64(e[16:]) != w.size {
			t.Fatalf("entry %d: name %d data %d size %d", i,
				le.Uint64(e[0:]), le.Uint64(e[8:]), le.Uint64(e[16:]))
		}
		if le.Uint32(e[24:]) != testInfo.Format || le.Uint32(e[28:]) != testInfo.SampleRate ||
			le.Uint16(e[32:]) != testInfo.Channels || le.Uint16(e[34:]) != testInfo.BitDepth {
			t.Fatalf("entry %d: info fields not written", i)
		}
	}
	if string(inst[168:179]) != "kick\x00snare\x00" || string(inst[179:]) != "ABCDEFGH" {
		t.Fatalf("names and data: %q", inst[168:])
	}
}

func TestWriterValidation(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	if err := w.AddMetadata(strings.Repeat("x", MaxPathLen), nil); err == nil {
		t.Fatalf("oversized metadata path accepted")
	}
	if err := w.AddMetadata("", []byte("x")); err == nil {
		t.Fatalf("empty metadata path accepted")
	}
	if err := w.AddMetadataFile("", filepath.Join(t.TempDir(), "x")); err == nil {
		t.Fatalf("empty metadata path accepted for a file")
	}
	if err := w.AddMetadata("a\x00b", nil); err == nil {
		t.Fatalf("metadata path with NUL accepted")
	}
	if err := w.AddInstrument("", testInfo, nil); err == nil {
		t.Fatalf("empty instrument name accepted")
	}
	if err := w.AddInstrument("a\x00b", testInfo, nil); err == nil {
		t.Fatalf("instrument name with NUL accepted")
	}
	if err := w.AddInstrumentFile(filepath.Join(t.TempDir(), "missing.wav"), testInfo); err == nil {
		t.Fatalf("missing instrument file accepted")
	}
	if err := w.AddMetadataFile("dir", t.TempDir()); err == nil {
		t.Fatalf("directory accepted as metadata file")
	}
}

func TestWriterDetectsShrunkFile(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "tone.raw")
	if err := os.WriteFile(file, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	w := NewWriter()
	if err := w.AddInstrumentFile(file, testInfo); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := os.WriteFile(file, []byte("01234"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := w.Bytes(); err == nil {
		t.Fatalf("short payload not reported")
	}
}

func TestPack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	metaDir := filepath.Join(dir, "meta")
	if err := os.MkdirAll(filepath.Join(metaDir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files := map[string]string{
		filepath.Join(metaDir, "b.json"):      `{"b":true}`,
		filepath.Join(metaDir, "a.txt"):       "first",
		filepath.Join(metaDir, "nested", "x"): "skipped",
		filepath.Join(dir, "kick.wav"):        "KICK",
		filepath.Join(dir, "snare.wav"):       "SNARE!",
	}
	for path, data := range files {
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	out := filepath.Join(dir, "kit.osmp")
	res, err := Pack(PackOptions{
		OutputPath:  out,
		MetaDir:     metaDir,
		Instruments: []string{filepath.Join(dir, "kick.wav"), filepath.Join(dir, "snare.wav")},
	})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if res.MetaFiles != 2 || res.Instruments != 2 {
		t.Fatalf("result: %+v", res)
	}
	st, err := os.Stat(out)
	if err != nil || st.Size() != res.Bytes {
		t.Fatalf("output size: got %v, %v want %d", st, err, res.Bytes)
	}

	c := mountFile(t, mustRead(t, out))
	e, err := c.Metadata().Entry(0)
	if err != nil || e.Path != "a.txt" {
		t.Fatalf("metadata must be archived in name order: got %+v, %v", e, err)
	}
	if _, ok := c.Metadata().Lookup("x"); ok {
		t.Fatalf("nested file archived")
	}
	idx, ok := c.Instruments().Find("snare.wav")
	if !ok {
		t.Fatalf("snare.wav not found")
	}
	data, _ := c.Instruments().Data(idx)
	if string(data) != "SNARE!" {
		t.Fatalf("snare data: got %q", data)
	}
	info, _ := c.Instruments().Info(idx)
	want := InstrumentInfo{Format: DefaultFormat, SampleRate: DefaultSampleRate, Channels: DefaultChannels, BitDepth: DefaultBitDepth}
	if info != want {
		t.Fatalf("default info: got %+v want %+v", info, want)
	}
}

func TestPackRemovesOutputOnFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "kit.osmp")
	if _, err := Pack(PackOptions{OutputPath: out, Instruments: []string{filepath.Join(dir, "missing.wav")}}); err == nil {
		t.Fatalf("pack with a missing instrument succeeded")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output left behind: %v", err)
	}
	if _, err := Pack(PackOptions{}); err == nil {
		t.Fatalf("pack without output path succeeded")
	}
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return b
}

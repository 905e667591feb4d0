package osmp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"testing"
)

// entryField returns the absolute file offset of a field of instrument i.
func entryField(b []byte, i int, field uint64) uint64 {
	instOff := binary.LittleEndian.Uint64(b[32:])
	return instOff + instfsHeaderSize + uint64(i)*instrumentEntrySize + field
}

func TestInstrumentTableRejectsBadEntries(t *testing.T) {
	t.Parallel()

	base := buildContainer(t, scenarioA, nil)
	instOff := binary.LittleEndian.Uint64(base[32:])
	instSize := binary.LittleEndian.Uint64(base[40:])

	tests := []struct {
		name   string
		mutate func(b []byte)
		want   error
	}{
		{
			name:   "data size past partition",
			mutate: func(b []byte) { putU64(b, entryField(b, 1, 16), instSize) },
			want:   ErrBounds,
		},
		{
			name:   "data size overflows",
			mutate: func(b []byte) { putU64(b, entryField(b, 0, 16), ^uint64(0)) },
			want:   ErrBounds,
		},
		{
			name:   "data offset past partition",
			mutate: func(b []byte) { putU64(b, entryField(b, 0, 8), instSize+1) },
			want:   ErrBounds,
		},
		{
			name:   "name offset at partition end",
			mutate: func(b []byte) { putU64(b, entryField(b, 0, 0), instSize) },
			want:   ErrBounds,
		},
		{
			name: "name without terminator",
			// "DEFGH" runs to the partition end with no NUL after it.
			mutate: func(b []byte) { putU64(b, entryField(b, 0, 0), instSize-5) },
			want:   ErrBounds,
		},
		{
			name:   "bad instfs magic",
			mutate: func(b []byte) { copy(b[instOff:], "NOTFS!") },
			want:   ErrFormat,
		},
		{
			name:   "bad instfs version",
			mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[instOff+8:], 0x00020000) },
			want:   ErrFormat,
		},
		{
			name:   "table overruns partition",
			mutate: func(b []byte) { binary.LittleEndian.PutUint32(b[instOff+12:], 1000) },
			want:   ErrFormat,
		},
		{
			name:   "table offset overflows",
			mutate: func(b []byte) { putU64(b, instOff+16, ^uint64(0)) },
			want:   ErrFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := bytes.Clone(base)
			tt.mutate(b)
			if _, err := MountMemory(b); !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestInstrumentTableMagicComparesSixBytes(t *testing.T) {
	t.Parallel()

	b := buildContainer(t, scenarioA, nil)
	instOff := binary.LittleEndian.Uint64(b[32:])
	copy(b[instOff+6:], "zz")

	c, err := MountMemory(b)
	if err != nil {
		t.Fatalf("padding bytes of the magic must be ignored: %v", err)
	}
	h := c.Instruments().Header()
	if got := string(h.Magic[:6]); got != MagicInstFS {
		t.Fatalf("magic: got %q", got)
	}
}

func TestOpenInstrumentTableShortPartition(t *testing.T) {
	t.Parallel()

	table, err := OpenInstrumentTable(nil)
	if err != nil || table.Count() != 0 {
		t.Fatalf("empty partition: got %v, %v", table, err)
	}
	if _, err := OpenInstrumentTable([]byte(MagicInstFS)); !errors.Is(err, ErrFormat) {
		t.Fatalf("short partition: got %v want ErrFormat", err)
	}
}

func TestInstrumentTableAccessors(t *testing.T) {
	t.Parallel()

	insts := []testInstrument{
		{name: "hat", data: []byte("tsss")},
		{name: "hat", data: []byte("second")},
		{name: "tom", data: []byte("boom")},
	}
	c, err := MountMemory(buildContainer(t, insts, nil))
	if err != nil {
		t.Fatalf("mount: %v", err)
	}
	table := c.Instruments()

	if idx, ok := table.Find("hat"); !ok || idx != 0 {
		t.Fatalf("duplicate names must resolve to the first entry: got %d, %v", idx, ok)
	}
	if _, ok := table.Find("missing"); ok {
		t.Fatalf("find missing: unexpected hit")
	}

	for _, i := range []int{-1, 3} {
		if _, err := table.Name(i); !errors.Is(err, ErrBounds) {
			t.Fatalf("name %d: got %v want ErrBounds", i, err)
		}
		if _, err := table.Data(i); !errors.Is(err, ErrBounds) {
			t.Fatalf("data %d: got %v want ErrBounds", i, err)
		}
	}

	buf := make([]byte, 3)
	n, err := table.Read(1, buf, 2)
	if err != nil || string(buf[:n]) != "con" {
		t.Fatalf("read: got %q, %v", buf[:n], err)
	}
	if n, err := table.Read(1, buf, 6); err != nil || n != 0 {
		t.Fatalf("read at end: got %d, %v", n, err)
	}

	var names []string
	for _, name := range table.All() {
		names = append(names, name)
	}
	if len(names) != 3 || names[2] != "tom" {
		t.Fatalf("all: got %v", names)
	}

	e, err := table.Entry(2)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if e.DataOffset+e.DataSize != table.Size() {
		t.Fatalf("last instrument must end the partition: %+v size %d", e, table.Size())
	}
}

// TestMountRandomCorruption flips bytes of a valid container and checks that
// a successful mount only ever exposes in-bounds data.
func TestMountRandomCorruption(t *testing.T) {
	t.Parallel()

	base := buildContainer(t, scenarioA, []testMeta{{path: "kit.json", data: []byte(`{"kit":1}`)}})
	rng := rand.New(rand.NewPCG(1, 2))
	for range 2000 {
		b := bytes.Clone(base)
		for range 1 + rng.IntN(4) {
			b[rng.IntN(len(b))] = byte(rng.Uint32())
		}
		checkMounted(t, b)
	}
}

func FuzzMountMemory(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte(MagicOSMP))
	f.Add(buildContainerF(f, scenarioA, nil))
	f.Add(buildContainerF(f, scenarioA, []testMeta{{path: "a", data: []byte("b")}}))
	f.Fuzz(func(t *testing.T, b []byte) {
		checkMounted(t, b)
	})
}

func buildContainerF(f *testing.F, insts []testInstrument, meta []testMeta) []byte {
	w := NewWriter()
	for _, m := range meta {
		if err := w.AddMetadata(m.path, m.data); err != nil {
			f.Fatal(err)
		}
	}
	for _, in := range insts {
		if err := w.AddInstrument(in.name, testInfo, in.data); err != nil {
			f.Fatal(err)
		}
	}
	b, err := w.Bytes()
	if err != nil {
		f.Fatal(err)
	}
	return b
}

func checkMounted(t *testing.T, b []byte) {
	t.Helper()
	c, err := MountMemory(b)
	if err != nil {
		if !errors.Is(err, ErrFormat) && !errors.Is(err, ErrBounds) {
			t.Fatalf("unexpected error class: %v", err)
		}
		return
	}
	defer func() { _ = c.Close() }()

	h := c.Header()
	table := c.Instruments()
	for i := range table.Count() {
		e, _ := table.Entry(i)
		if h.InstFSOffset+e.DataOffset+e.DataSize > uint64(len(b)) {
			t.Fatalf("instrument %d escapes the file: %+v", i, e)
		}
		if _, err := table.Data(i); err != nil {
			t.Fatalf("data %d: %v", i, err)
		}
	}
	for _, e := range c.Metadata().All() {
		if h.MetaOffset+e.Offset+e.Size > uint64(len(b)) {
			t.Fatalf("metadata %q escapes the file", e.Path)
		}
	}
}

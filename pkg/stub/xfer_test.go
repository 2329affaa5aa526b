package stub

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/vigilo/vigilo/pkg/target"
)

func TestXferThreads(t *testing.T) {
	p := newFakeProcess(0x10, 2, 3, 5)
	p.threads[2].core = 0
	p.threads[3].core = 1
	p.threads[5].core = 0
	d := testSession(p)

	buffer, last, err := d.OnXferRead(&fakeWire{}, "threads", "", 0, 0xffff)
	assertNoError(err, t, "OnXferRead")
	if !last {
		t.Fatalf("last = false for a full read")
	}

	doc := string(buffer)
	for _, want := range []string{
		`<thread id="p10.2" core="0"/>`,
		`<thread id="p10.3" core="1"/>`,
		`<thread id="p10.5" core="0"/>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document %q does not contain %q", doc, want)
		}
	}
	if !strings.HasPrefix(doc, "<threads>") || !strings.Contains(doc, "</threads>") {
		t.Errorf("document not wrapped in <threads>: %q", doc)
	}
}

func TestXferPagination(t *testing.T) {
	p := newFakeProcess(10, 2, 3, 5)
	p.auxv = []byte("0123456789abcdefghij")
	d := testSession(p)
	w := &fakeWire{}

	for _, object := range []string{"threads", "auxv", "features"} {
		annex := ""
		if object == "features" {
			annex = "target.xml"
		}
		full, last, err := d.OnXferRead(w, object, annex, 0, 0x10000)
		assertNoError(err, t, object+" full read")
		if !last {
			t.Fatalf("%s: full read not last", object)
		}

		var assembled []byte
		offset := uint64(0)
		for {
			chunk, last, err := d.OnXferRead(w, object, annex, offset, 7)
			assertNoError(err, t, object+" chunked read")
			assembled = append(assembled, chunk...)
			offset += uint64(len(chunk))
			if last {
				if len(chunk) == 7 && offset < uint64(len(full)) {
					t.Fatalf("%s: last set before the final chunk", object)
				}
				break
			}
			if len(chunk) != 7 {
				t.Fatalf("%s: truncated chunk of %d bytes not marked last", object, len(chunk))
			}
		}
		if !bytes.Equal(assembled, full) {
			t.Fatalf("%s: chunked walk = %q, want %q", object, assembled, full)
		}
	}
}

func TestXferLibrariesSVR4(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.libs = []target.SharedLibrary{
		{Main: true, Path: "/bin/inferior", MapAddress: 0x555000},
		{Path: "/lib/libc.so.6", MapAddress: 0x7f01, BaseAddress: 0x7f02, LDAddress: 0x7f03},
	}
	d := testSession(p)

	buffer, last, err := d.OnXferRead(&fakeWire{}, "libraries-svr4", "", 0, 0xffff)
	assertNoError(err, t, "OnXferRead")
	if !last {
		t.Fatalf("last = false")
	}

	doc := string(buffer)
	if !strings.HasPrefix(doc, `<library-list-svr4 version="1.0" main-lm="0x555000">`) {
		t.Errorf("main-lm missing: %q", doc)
	}
	if !strings.Contains(doc, `<library name="/lib/libc.so.6" lm="0x7f01" l_addr="0x7f02" l_ld="0x7f03" />`) {
		t.Errorf("library entry missing: %q", doc)
	}
	if strings.Contains(doc, "/bin/inferior") {
		t.Errorf("main module listed as a library: %q", doc)
	}
}

func TestXferLibrariesSVR4NoMainAddress(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.libs = []target.SharedLibrary{{Main: true, Path: "/bin/inferior"}}
	d := testSession(p)

	buffer, _, err := d.OnXferRead(&fakeWire{}, "libraries-svr4", "", 0, 0xffff)
	assertNoError(err, t, "OnXferRead")
	if strings.Contains(string(buffer), "main-lm") {
		t.Errorf("main-lm emitted without a map address: %q", buffer)
	}
}

func TestXferLibrariesNonELF(t *testing.T) {
	p := newFakeProcess(10, 2)
	p.elf = false
	d := testSession(p)

	if _, _, err := d.OnXferRead(&fakeWire{}, "libraries-svr4", "", 0, 0xffff); !errors.Is(err, target.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestXferUnknownObject(t *testing.T) {
	d := testSession(newFakeProcess(10, 2))
	if _, _, err := d.OnXferRead(&fakeWire{}, "osdata", "", 0, 16); !errors.Is(err, target.ErrUnsupported) {
		t.Fatalf("got %v, want ErrUnsupported", err)
	}
}

func TestXferFeatures(t *testing.T) {
	d := testSession(newFakeProcess(10, 2))
	w := &fakeWire{}

	buffer, _, err := d.OnXferRead(w, "features", "target.xml", 0, 0x10000)
	assertNoError(err, t, "target.xml")
	doc := string(buffer)
	if !strings.Contains(doc, "<architecture>i386:x86-64</architecture>") {
		t.Errorf("architecture missing: %q", doc)
	}
	if !strings.Contains(doc, `<xi:include href="64bit-core.xml"/>`) {
		t.Errorf("feature include missing: %q", doc)
	}

	buffer, _, err = d.OnXferRead(w, "features", "64bit-core.xml", 0, 0x10000)
	assertNoError(err, t, "64bit-core.xml")
	if !strings.Contains(string(buffer), `<reg name="rip" bitsize="64" type="code_ptr" regnum="16"`) {
		t.Errorf("rip register missing: %q", buffer)
	}

	// a second fetch comes out of the cache and must be identical
	again, _, err := d.OnXferRead(w, "features", "64bit-core.xml", 0, 0x10000)
	assertNoError(err, t, "cached 64bit-core.xml")
	if !bytes.Equal(buffer, again) {
		t.Errorf("cached document differs")
	}
}

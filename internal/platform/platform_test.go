package platform

import (
	"testing"

	"quol-input/internal/hook/hooktest"
)

type observeOnlySource struct{ *hooktest.Source }

func (observeOnlySource) ObserveOnly() bool { return true }

func TestDescribe(t *testing.T) {
	src := hooktest.New(nil)

	if got := Describe(src); !got.Inject || !got.Suppress {
		t.Fatalf("Describe(injecting source) = %+v", got)
	}
	if got := Describe(src.ObserveOnly()); got.Inject {
		t.Fatalf("Describe(observe-only view) = %+v, want no injection", got)
	}
	if got := Describe(observeOnlySource{src}); got.Suppress {
		t.Fatalf("Describe(listen-only source) = %+v, want no suppression", got)
	}
}

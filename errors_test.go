package magma

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := fmt.Errorf("flow 2: %w", &ConfigError{Field: "type", Reason: "must be a string"})
	if !errors.Is(err, ErrConfig) {
		t.Error("expected ErrConfig")
	}
	if err.Error() != "flow 2: 'type' must be a string" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if (&ConfigError{Reason: "bare"}).Error() != "bare" {
		t.Error("expected reason only without a field")
	}
}

func TestInvalidPathError(t *testing.T) {
	err := &InvalidPathError{Path: "/dev/null", Mode: fs.ModeDevice | fs.ModeCharDevice}
	if !errors.Is(err, ErrInvalidPath) {
		t.Error("expected ErrInvalidPath")
	}
	if errors.Is(err, ErrConfig) {
		t.Error("did not expect ErrConfig")
	}
}

func TestStageOf(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{&TransformError{Stage: StagePreprocess}, StagePreprocess},
		{fmt.Errorf("wrapped: %w", &TransformError{Stage: StagePostprocess}), StagePostprocess},
		{&StoreError{Err: errors.New("x")}, StageSave},
		{&InvalidPathError{}, StageCollect},
	}
	for _, tc := range cases {
		if got := stageOf(tc.err); got != tc.want {
			t.Errorf("stageOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestTransformError_Message(t *testing.T) {
	pre := &TransformError{Stage: StagePreprocess, Transform: "sass", Path: "/a.scss", Err: errors.New("bad")}
	if pre.Error() != `preprocess "sass" failed on /a.scss: bad` {
		t.Errorf("unexpected message %q", pre.Error())
	}
	post := &TransformError{Stage: StagePostprocess, Transform: "minify", Err: errors.New("bad")}
	if post.Error() != `postprocess "minify" failed: bad` {
		t.Errorf("unexpected message %q", post.Error())
	}
}

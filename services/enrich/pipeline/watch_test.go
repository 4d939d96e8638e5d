// Copyright (C) 2025 Tessera AI (mvandenberg@tessera-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestIsTranscriptEvent(t *testing.T) {
	cases := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"created transcript", fsnotify.Event{Name: "/in/a.vtt", Op: fsnotify.Create}, true},
		{"written transcript", fsnotify.Event{Name: "/in/a.vtt", Op: fsnotify.Write}, true},
		{"renamed transcript", fsnotify.Event{Name: "/in/a.vtt.part", Op: fsnotify.Rename}, false},
		{"uppercase extension", fsnotify.Event{Name: "/in/A.VTT", Op: fsnotify.Create}, true},
		{"removed transcript", fsnotify.Event{Name: "/in/a.vtt", Op: fsnotify.Remove}, false},
		{"chmod only", fsnotify.Event{Name: "/in/a.vtt", Op: fsnotify.Chmod}, false},
		{"other file kind", fsnotify.Event{Name: "/in/notes.txt", Op: fsnotify.Create}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTranscriptEvent(tc.event); got != tc.want {
				t.Errorf("isTranscriptEvent(%v) = %v, want %v", tc.event, got, tc.want)
			}
		})
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	p := newTestPipeline(t, newStageOracle(nil), dataDir, outDir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()

	// Give the watcher a moment to install before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatch_MissingFolderFails(t *testing.T) {
	dataDir, outDir := t.TempDir(), t.TempDir()
	p := newTestPipeline(t, newStageOracle(nil), dataDir+"/nope", outDir)

	if err := p.Watch(context.Background()); err == nil {
		t.Fatal("expected an error for a missing data folder")
	}
}

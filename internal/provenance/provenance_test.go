package provenance_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"audiocorpus/internal/progress"
	"audiocorpus/internal/provenance"
)

func TestIndexRegisterChildInheritsOwner(t *testing.T) {
	index := provenance.NewIndex()
	index.Register("/in/talk.mp3", provenance.Owner{RecordID: "r1", SourceFile: "talk.mp3"})

	if !index.RegisterChild("/out/talk_speaker_SPEAKER_01.wav", "talk.mp3", "SPEAKER_01") {
		t.Fatal("expected parent to be known")
	}
	if !index.RegisterChild("talk_speaker_SPEAKER_01_seg000.wav", "talk_speaker_SPEAKER_01.wav", "") {
		t.Fatal("expected speaker file to be known")
	}
	owner, ok := index.Lookup("/elsewhere/talk_speaker_SPEAKER_01_seg000.wav")
	if !ok {
		t.Fatal("segment should be registered")
	}
	if owner.RecordID != "r1" || owner.SpeakerID != "SPEAKER_01" {
		t.Fatalf("unexpected owner: %+v", owner)
	}
	if index.RegisterChild("x.wav", "unknown.wav", "") {
		t.Fatal("unknown parent must not register")
	}
	if index.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", index.Len())
	}
}

func TestStemCandidates(t *testing.T) {
	got := provenance.StemCandidates("/x/originalname_speaker_2_seg004.wav")
	want := []string{"originalname_speaker_2_seg004", "originalname_speaker_2", "originalname_speaker", "originalname"}
	if !slices.Equal(got, want) {
		t.Fatalf("StemCandidates = %v, want %v", got, want)
	}
}

func TestResolveOrder(t *testing.T) {
	ctx := context.Background()
	store := progress.NewMemoryStore()
	id, err := store.CreateOrGet(ctx, "original_name.mp3", nil)
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	if err := store.AppendSegment(ctx, id, progress.Segment{File: "clip_a.wav", SpeakerID: "SPEAKER_00"}); err != nil {
		t.Fatalf("AppendSegment: %v", err)
	}
	index := provenance.NewIndex()

	owner, err := provenance.Resolve(ctx, store, index, "/in/original_name.mp3", nil)
	if err != nil || owner.RecordID != id {
		t.Fatalf("exact lookup: %+v, %v", owner, err)
	}

	owner, err = provenance.Resolve(ctx, store, index, "clip_a.wav", nil)
	if err != nil || owner.RecordID != id || owner.SpeakerID != "SPEAKER_00" {
		t.Fatalf("segment lookup: %+v, %v", owner, err)
	}

	owner, err = provenance.Resolve(ctx, store, index, "/p/original_name_mp3_speaker_2_seg004.wav", nil)
	if err != nil {
		t.Fatalf("heuristic lookup: %v", err)
	}
	if owner.RecordID != id || owner.SpeakerID != "2" {
		t.Fatalf("unexpected heuristic owner: %+v", owner)
	}
	if _, ok := index.Lookup("original_name_mp3_speaker_2_seg004.wav"); !ok {
		t.Fatal("resolved names should be cached in the index")
	}

	_, err = provenance.Resolve(ctx, store, index, "stranger_seg001.wav", nil)
	if !errors.Is(err, progress.ErrOwningRecordNotFound) {
		t.Fatalf("expected ErrOwningRecordNotFound, got %v", err)
	}
}

func TestResolveKeepsSameStemSourcesApart(t *testing.T) {
	ctx := context.Background()
	store := progress.NewMemoryStore()
	wavID, err := store.CreateOrGet(ctx, "interview.wav", nil)
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	mp3ID, err := store.CreateOrGet(ctx, "interview.mp3", nil)
	if err != nil {
		t.Fatalf("CreateOrGet: %v", err)
	}
	cases := map[string]string{
		"interview_seg001.wav":     wavID,
		"interview_mp3_seg001.wav": mp3ID,
	}
	for name, want := range cases {
		owner, err := provenance.Resolve(ctx, store, provenance.NewIndex(), name, nil)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
		if owner.RecordID != want {
			t.Errorf("Resolve(%s) = %s, want %s", name, owner.RecordID, want)
		}
	}
}

func TestResolvePrefersIndex(t *testing.T) {
	index := provenance.NewIndex()
	index.Register("renamed.wav", provenance.Owner{RecordID: "r9", SourceFile: "whatever.wav"})
	owner, err := provenance.Resolve(context.Background(), progress.NewMemoryStore(), index, "renamed.wav", nil)
	if err != nil || owner.RecordID != "r9" {
		t.Fatalf("expected index hit, got %+v, %v", owner, err)
	}
}

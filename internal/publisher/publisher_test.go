package publisher

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/crypto-autopost/internal/db"
)

var errSendFailed = errors.New("send failed")

type queueEntry struct {
	id          string
	itemID      string
	status      string
	attempts    int
	availableAt time.Time
}

type fakeRepo struct {
	mu        sync.Mutex
	items     map[string]*db.ProcessedItem
	published map[string]*db.PublishedRecord
	recent    []db.PublishedRecord
	archive   []db.ArchiveEntry
	entries   []*queueEntry
	cache     map[string][]byte
	savedLost bool
	sweeps    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		items:     make(map[string]*db.ProcessedItem),
		published: make(map[string]*db.PublishedRecord),
		cache:     make(map[string][]byte),
	}
}

func (f *fakeRepo) GetProcessedItem(_ context.Context, id string) (*db.ProcessedItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, nil //nolint:nilnil // mirrors store behavior for missing rows
	}

	copied := *item

	return &copied, nil
}

func (f *fakeRepo) MarkItemPublished(_ context.Context, id string) error {
	if item, ok := f.items[id]; ok {
		item.Status = db.StatusPublished
	}

	return nil
}

func (f *fakeRepo) HasPublishedRecord(_ context.Context, id string) (bool, error) {
	_, ok := f.published[id]

	return ok, nil
}

func (f *fakeRepo) SavePublishedRecord(_ context.Context, rec *db.PublishedRecord) (bool, error) {
	if f.savedLost {
		return false, nil
	}

	if _, ok := f.published[rec.ProcessedItemID]; ok {
		return false, nil
	}

	copied := *rec
	f.published[rec.ProcessedItemID] = &copied

	return true, nil
}

func (f *fakeRepo) RecentPublishedRecords(_ context.Context, limit int) ([]db.PublishedRecord, error) {
	if limit < 0 {
		limit = 0
	}

	if len(f.recent) > limit {
		return f.recent[:limit], nil
	}

	return f.recent, nil
}

func (f *fakeRepo) AddArchiveEntry(_ context.Context, entry *db.ArchiveEntry) error {
	f.archive = append(f.archive, *entry)

	return nil
}

func (f *fakeRepo) addQueueEntry(itemID string) *queueEntry {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry := &queueEntry{id: "claim-" + itemID, itemID: itemID, status: "pending"}
	f.entries = append(f.entries, entry)

	return entry
}

func (f *fakeRepo) ClaimQueueItem(_ context.Context, _ string) (*db.QueueClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.status != "pending" || entry.availableAt.After(time.Now()) {
			continue
		}

		entry.status = "processing"
		entry.attempts++

		return &db.QueueClaim{ID: entry.id, ItemID: entry.itemID, Attempts: entry.attempts}, nil
	}

	return nil, nil //nolint:nilnil // empty queue
}

func (f *fakeRepo) AckQueueItem(_ context.Context, claimID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, entry := range f.entries {
		if entry.id == claimID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)

			return nil
		}
	}

	return nil
}

func (f *fakeRepo) RequeueClaim(_ context.Context, claimID string, retryAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.id == claimID {
			entry.status = "pending"
			entry.availableAt = retryAt
		}
	}

	return nil
}

func (f *fakeRepo) MarkClaimDead(_ context.Context, claimID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, entry := range f.entries {
		if entry.id == claimID {
			entry.status = "dead"
		}
	}

	return nil
}

func (f *fakeRepo) ReclaimStaleClaims(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

func (f *fakeRepo) SweepDueScheduled(_ context.Context) (int, error) {
	f.sweeps++

	return 0, nil
}

func (f *fakeRepo) GetStageCache(_ context.Context, fingerprint string) ([]byte, error) {
	payload, ok := f.cache[fingerprint]
	if !ok {
		return nil, db.ErrStageCacheMiss
	}

	return payload, nil
}

func (f *fakeRepo) PutStageCache(_ context.Context, fingerprint string, payload []byte, _ time.Duration) error {
	f.cache[fingerprint] = payload

	return nil
}

type fakeSender struct {
	textCalls  int
	photoCalls int
	photoFail  bool
	textFail   bool
}

func (f *fakeSender) SendText(_ int64, _ string) (int, error) {
	f.textCalls++
	if f.textFail {
		return 0, errSendFailed
	}

	return 100 + f.textCalls, nil
}

func (f *fakeSender) SendPhoto(_ int64, _ string, _ []byte) (int, error) {
	f.photoCalls++
	if f.photoFail {
		return 0, errSendFailed
	}

	return 200 + f.photoCalls, nil
}

type fakeImages struct {
	calls int
	fail  bool
}

func (f *fakeImages) Generate(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.fail {
		return "", errSendFailed
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpegdata")), nil
}

type fakeEmbedder struct{ err error }

func (f *fakeEmbedder) GetEmbedding(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}

	return []float32{0.5, 0.5}, nil
}

func readyItem(id string) *db.ProcessedItem {
	return &db.ProcessedItem{
		ID:            id,
		RawItemID:     "raw-" + id,
		Status:        db.StatusReady,
		HeadlineShort: "Заголовок",
		RewrittenText: strings.Repeat("Текст статьи про bitcoin. ", 10),
		Tags:          []string{"btc"},
	}
}

func newTestPublisher(repo *fakeRepo, sender *fakeSender, imageGen *fakeImages, embedder *fakeEmbedder) *Publisher {
	logger := zerolog.Nop()

	return New(repo, sender, imageGen, embedder, Config{
		ChatID:             42,
		AffiliateFrequency: 5,
		AffiliateLinks:     DefaultAffiliateLinks(),
		PollInterval:       time.Millisecond,
		SweepPeriod:        time.Minute,
		StageTimeout:       time.Second,
	}, &logger)
}

func TestPublishItem(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")

	sender := &fakeSender{}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	rec := repo.published["item-1"]
	if rec == nil {
		t.Fatal("published record not persisted")
	}

	if sender.photoCalls != 1 || sender.textCalls != 0 {
		t.Errorf("send calls photo=%d text=%d, want photo path", sender.photoCalls, sender.textCalls)
	}

	if repo.items["item-1"].Status != db.StatusPublished {
		t.Errorf("item status = %q, want published", repo.items["item-1"].Status)
	}

	if len(repo.archive) != 1 {
		t.Fatalf("archive entries = %d, want 1", len(repo.archive))
	}

	if repo.archive[0].ProcessedItemID != "item-1" || len(repo.archive[0].Embedding) == 0 {
		t.Errorf("archive entry = %+v", repo.archive[0])
	}
}

func TestPublishItemIdempotent(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	repo.published["item-1"] = &db.PublishedRecord{ProcessedItemID: "item-1"}

	sender := &fakeSender{}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if sender.photoCalls+sender.textCalls != 0 {
		t.Error("redelivered item was sent again")
	}
}

func TestPublishItemNotReady(t *testing.T) {
	repo := newFakeRepo()

	item := readyItem("item-1")
	item.Status = db.StatusPending
	item.Hold = true
	repo.items["item-1"] = item

	sender := &fakeSender{}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if sender.photoCalls+sender.textCalls != 0 {
		t.Error("held item was sent")
	}
}

func TestPublishItemPhotoFallsBackToText(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")

	sender := &fakeSender{photoFail: true}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if sender.photoCalls != 1 || sender.textCalls != 1 {
		t.Errorf("send calls photo=%d text=%d, want fallback to text", sender.photoCalls, sender.textCalls)
	}

	rec := repo.published["item-1"]
	if rec == nil {
		t.Fatal("fallback send did not persist a record")
	}

	if rec.ImageURL != "" {
		t.Errorf("text-only record has image reference %q", rec.ImageURL)
	}
}

func TestPublishItemImageFailureSendsTextOnly(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")

	sender := &fakeSender{}
	p := newTestPublisher(repo, sender, &fakeImages{fail: true}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if sender.photoCalls != 0 || sender.textCalls != 1 {
		t.Errorf("send calls photo=%d text=%d, want text only", sender.photoCalls, sender.textCalls)
	}
}

func TestPublishItemBothSendsFail(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")

	sender := &fakeSender{photoFail: true, textFail: true}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err == nil {
		t.Fatal("publishItem() must fail when both send paths fail")
	}

	if len(repo.published) != 0 {
		t.Error("failed send left a published record")
	}
}

func TestPublishItemLostRecordRace(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	repo.savedLost = true

	p := newTestPublisher(repo, &fakeSender{}, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v, losing actor must abort silently", err)
	}

	if repo.items["item-1"].Status == db.StatusPublished {
		t.Error("losing actor flipped the item status")
	}

	if len(repo.archive) != 0 {
		t.Error("losing actor appended to the archive")
	}
}

func TestPublishItemEmbeddingFailureSkipsArchive(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")

	p := newTestPublisher(repo, &fakeSender{}, &fakeImages{}, &fakeEmbedder{err: errSendFailed})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if repo.published["item-1"] == nil {
		t.Error("embedding failure must not block publishing")
	}

	if len(repo.archive) != 0 {
		t.Error("archive entry added without an embedding")
	}
}

func TestPublishItemAffiliateFromWindow(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	// Empty window: the policy must insert an affiliate block.
	p := newTestPublisher(repo, &fakeSender{}, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	rec := repo.published["item-1"]
	if rec == nil || !rec.ContainsAffiliate || rec.AffiliateName == "" {
		t.Errorf("record = %+v, want affiliate block", rec)
	}

	if !strings.Contains(rec.FinalText, DisclosureText) {
		t.Error("final text missing disclosure")
	}
}

func TestPublishItemAffiliateDueWhenOldestSlidesOut(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	// The affiliate post is exactly frequency posts back (newest first),
	// outside the frequency-1 window, so the cadence is due again.
	repo.recent = []db.PublishedRecord{
		{ContainsAffiliate: false},
		{ContainsAffiliate: false},
		{ContainsAffiliate: false},
		{ContainsAffiliate: false},
		{ContainsAffiliate: true},
	}

	p := newTestPublisher(repo, &fakeSender{}, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if rec := repo.published["item-1"]; !rec.ContainsAffiliate {
		t.Error("affiliate not inserted when the last one is a full cadence back")
	}
}

func TestPublishItemStoresImageReference(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")

	p := newTestPublisher(repo, &fakeSender{}, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	rec := repo.published["item-1"]
	if rec == nil {
		t.Fatal("published record not persisted")
	}

	if !strings.HasPrefix(rec.ImageURL, "data:image/jpeg;base64,") {
		t.Errorf("image reference = %q, want the data URI that was sent", rec.ImageURL)
	}

	if got := decodeDataURI(rec.ImageURL); string(got) != "jpegdata" {
		t.Errorf("stored reference decodes to %q, want the sent image bytes", got)
	}
}

func TestStepRequeuesOnSendFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	entry := repo.addQueueEntry("item-1")

	sender := &fakeSender{photoFail: true, textFail: true}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.step(context.Background()); err == nil {
		t.Fatal("step() must surface the send failure")
	}

	if entry.status != "pending" || entry.attempts != 1 {
		t.Fatalf("entry status = %q attempts = %d, want pending entry after one failed delivery", entry.status, entry.attempts)
	}

	if !entry.availableAt.After(time.Now()) {
		t.Error("redelivery not delayed")
	}

	// Channel back up: the redelivered entry publishes and is acked.
	sender.textFail = false
	sender.photoFail = false
	entry.availableAt = time.Now().Add(-time.Second)

	if err := p.step(context.Background()); err != nil {
		t.Fatalf("step() after recovery error = %v", err)
	}

	if repo.published["item-1"] == nil {
		t.Fatal("item lost after redelivery")
	}

	if len(repo.entries) != 0 {
		t.Error("entry not acked after successful publish")
	}
}

func TestStepParksEntryAfterAttemptBudget(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	entry := repo.addQueueEntry("item-1")
	entry.attempts = maxQueueAttempts - 1

	sender := &fakeSender{photoFail: true, textFail: true}
	p := newTestPublisher(repo, sender, &fakeImages{}, &fakeEmbedder{})

	if err := p.step(context.Background()); err == nil {
		t.Fatal("step() must surface the send failure")
	}

	if entry.status != "dead" {
		t.Errorf("entry status = %q, want parked after exhausted attempts", entry.status)
	}

	// A parked entry is never delivered again.
	if err := p.step(context.Background()); err != nil {
		t.Fatalf("step() on empty queue error = %v", err)
	}

	if entry.attempts != maxQueueAttempts {
		t.Errorf("attempts = %d, want no delivery past the budget", entry.attempts)
	}
}

func TestPublishItemNoAffiliateWhenWindowCovered(t *testing.T) {
	repo := newFakeRepo()
	repo.items["item-1"] = readyItem("item-1")
	repo.recent = []db.PublishedRecord{
		{ContainsAffiliate: true},
		{ContainsAffiliate: false},
	}

	p := newTestPublisher(repo, &fakeSender{}, &fakeImages{}, &fakeEmbedder{})

	if err := p.publishItem(context.Background(), "item-1"); err != nil {
		t.Fatalf("publishItem() error = %v", err)
	}

	if rec := repo.published["item-1"]; rec.ContainsAffiliate {
		t.Error("affiliate inserted despite covered window")
	}
}

func TestResolveImageReusesCache(t *testing.T) {
	repo := newFakeRepo()

	imageGen := &fakeImages{}
	p := newTestPublisher(repo, &fakeSender{}, imageGen, &fakeEmbedder{})

	item := readyItem("item-1")

	first, firstURI := p.resolveImage(context.Background(), item)
	second, secondURI := p.resolveImage(context.Background(), item)

	if imageGen.calls != 1 {
		t.Errorf("image generator calls = %d, want 1 (second resolves from cache)", imageGen.calls)
	}

	if string(first) != string(second) || string(first) != "jpegdata" {
		t.Errorf("image bytes differ or wrong: %q vs %q", first, second)
	}

	if firstURI != secondURI || !strings.HasPrefix(firstURI, "data:image/jpeg;base64,") {
		t.Errorf("image uris differ or wrong: %q vs %q", firstURI, secondURI)
	}
}

func TestDecodeDataURI(t *testing.T) {
	if got := decodeDataURI("not a data uri"); got != nil {
		t.Errorf("decodeDataURI() = %v, want nil", got)
	}

	if got := decodeDataURI("data:image/jpeg;base64,!!!"); got != nil {
		t.Errorf("decodeDataURI() invalid base64 = %v, want nil", got)
	}

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))
	if got := decodeDataURI(uri); string(got) != "png" {
		t.Errorf("decodeDataURI() = %q, want png", got)
	}
}

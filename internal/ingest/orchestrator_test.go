package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tradelens/tradelens/internal/article"
	"github.com/tradelens/tradelens/internal/fetch"
	"github.com/tradelens/tradelens/internal/logbook"
	"github.com/tradelens/tradelens/internal/source"
)

// --- fakes ---

type memorySink struct {
	mu     sync.Mutex
	events []logbook.Event
}

func (m *memorySink) Append(_ context.Context, e logbook.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memorySink) count(sev logbook.Severity, action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Severity == sev && (action == "" || e.Action == action) {
			n++
		}
	}
	return n
}

func newTestLog(sink *memorySink) *logbook.Log {
	return logbook.New(sink, slog.New(slog.DiscardHandler))
}

type fakeSources struct {
	sources []source.Source
	err     error
}

func (f *fakeSources) List(_ context.Context) ([]source.Source, error) {
	return f.sources, f.err
}

// trace records cross-stage call order for sequencing assertions.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, s)
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

type fakeFetcher struct {
	trace    *trace
	payloads map[string][]byte
	errs     map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, src source.Source) ([]byte, error) {
	if f.trace != nil {
		f.trace.add("fetch:" + src.Name)
	}
	if err := f.errs[src.Name]; err != nil {
		return nil, err
	}
	return f.payloads[src.Name], nil
}

type fakeExtractor struct {
	articles map[string][]article.Article // keyed by payload
	err      error
	panicOn  string
}

func (f *fakeExtractor) Extract(_ context.Context, raw []byte, _ []source.FieldMapping) ([]article.Article, error) {
	if f.panicOn != "" && string(raw) == f.panicOn {
		panic("extractor blew up")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.articles[string(raw)], nil
}

type fakeAnalyzer struct {
	trace *trace
	delay time.Duration
	err   error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, ticker, _, _ string) (article.Sentiment, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.trace != nil {
		f.trace.add("analyze:" + ticker)
	}
	if f.err != nil {
		return article.Sentiment{}, f.err
	}
	return article.Sentiment{Label: "bullish", ImpactScore: 0.5, Summary: "ok"}, nil
}

type fakeSink struct {
	mu       sync.Mutex
	inserted []article.Article
	patched  map[string]article.Sentiment
}

func newFakeSink() *fakeSink {
	return &fakeSink{patched: map[string]article.Sentiment{}}
}

func (f *fakeSink) InsertPending(_ context.Context, a article.Article) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = primitive.NewObjectID()
	f.inserted = append(f.inserted, a)
	return a.ID, nil
}

func (f *fakeSink) AttachSentiment(_ context.Context, id primitive.ObjectID, s article.Sentiment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched[id.Hex()] = s
	return nil
}

// panickySink panics on the Nth insert, after earlier inserts succeeded.
type panickySink struct {
	*fakeSink
	panicOn int
	calls   int
}

func (p *panickySink) InsertPending(ctx context.Context, a article.Article) (primitive.ObjectID, error) {
	p.calls++
	if p.calls == p.panicOn {
		panic("store write blew up")
	}
	return p.fakeSink.InsertPending(ctx, a)
}

func (f *fakeSink) insertedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inserted)
}

func art(ticker, headline string) article.Article {
	return article.Article{Ticker: ticker, Headline: headline, Content: headline + " body"}
}

func pollSource(name string, active bool) source.Source {
	return source.Source{Name: name, Kind: source.KindPoll, URL: "http://example.com/" + name, Active: active}
}

// --- cycle tests ---

func TestRunCycle_ImportsAndScores(t *testing.T) {
	sink := newFakeSink()
	logSink := &memorySink{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("wire", true)}},
		&fakeFetcher{payloads: map[string][]byte{"wire": []byte("p1")}},
		&fakeExtractor{articles: map[string][]article.Article{
			"p1": {art("ACME", "Acme beats earnings"), art("BETA", "Beta raises guidance")},
		}},
		&fakeAnalyzer{},
		sink,
		newTestLog(logSink),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 2 || res.Filtered != 0 {
		t.Errorf("result = %+v, want {2 0}", res)
	}
	if sink.insertedCount() != 2 {
		t.Errorf("inserted %d articles", sink.insertedCount())
	}
	// Fan-out is joined before RunCycle returns, so every article is scored.
	if len(sink.patched) != 2 {
		t.Errorf("patched %d articles, want 2", len(sink.patched))
	}
	if logSink.count(logbook.SeverityInfo, "ingestion cycle complete") != 1 {
		t.Error("expected a cycle completion event")
	}
}

func TestRunCycle_PersistsBeforeSentiment(t *testing.T) {
	sink := newFakeSink()
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("wire", true)}},
		&fakeFetcher{payloads: map[string][]byte{"wire": []byte("p1")}},
		&fakeExtractor{articles: map[string][]article.Article{"p1": {art("ACME", "h")}}},
		&fakeAnalyzer{},
		sink,
		newTestLog(&memorySink{}),
	)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	// The inserted record must be the pending phase: no sentiment attached.
	if sink.inserted[0].Scored() {
		t.Error("article was persisted with sentiment; it must be written pending")
	}
	if sink.inserted[0].Source != "wire" {
		t.Errorf("source not stamped: %q", sink.inserted[0].Source)
	}
}

func TestRunCycle_ExcludeFilter(t *testing.T) {
	sink := newFakeSink()
	src := pollSource("wire", true)
	src.ExcludeKeywords = []string{"merger"}

	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{src}},
		&fakeFetcher{payloads: map[string][]byte{"wire": []byte("p1")}},
		&fakeExtractor{articles: map[string][]article.Article{
			"p1": {art("ACME", "Acme announces Merger"), art("BETA", "Beta beats earnings")},
		}},
		&fakeAnalyzer{},
		sink,
		newTestLog(&memorySink{}),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Filtered != 1 {
		t.Errorf("result = %+v, want {1 1}", res)
	}
	if sink.inserted[0].Ticker != "BETA" {
		t.Errorf("wrong article survived: %s", sink.inserted[0].Ticker)
	}
}

func TestRunCycle_FetchFailureSkipsSourceOnly(t *testing.T) {
	sink := newFakeSink()
	logSink := &memorySink{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("down", true), pollSource("up", true)}},
		&fakeFetcher{
			payloads: map[string][]byte{"up": []byte("p2")},
			errs:     map[string]error{"down": &fetch.FetchError{Source: "down", StatusCode: 503}},
		},
		&fakeExtractor{articles: map[string][]article.Article{"p2": {art("ACME", "h")}}},
		&fakeAnalyzer{},
		sink,
		newTestLog(logSink),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Errorf("imported = %d; the healthy source must still be processed", res.Imported)
	}
	if logSink.count(logbook.SeverityWarn, "fetch failed, skipping source") != 1 {
		t.Error("expected a WARN for the failed source")
	}
}

func TestRunCycle_FetchFailureAlone(t *testing.T) {
	sink := newFakeSink()
	logSink := &memorySink{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("down", true)}},
		&fakeFetcher{errs: map[string]error{"down": &fetch.FetchError{Source: "down", StatusCode: 503}}},
		&fakeExtractor{},
		&fakeAnalyzer{},
		sink,
		newTestLog(logSink),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 0 || res.Filtered != 0 {
		t.Errorf("result = %+v, want {0 0}", res)
	}
	if sink.insertedCount() != 0 {
		t.Error("no articles may be written for a failed fetch")
	}
	if logSink.count(logbook.SeverityInfo, "ingestion cycle complete") != 0 {
		t.Error("empty cycle must not log completion")
	}
}

func TestRunCycle_SkipsInactiveAndPushSources(t *testing.T) {
	tr := &trace{}
	push := source.Source{Name: "socket", Kind: source.KindPush, URL: "wss://x", Active: true}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("off", false), push, pollSource("on", true)}},
		&fakeFetcher{trace: tr, payloads: map[string][]byte{"on": []byte("p")}},
		&fakeExtractor{},
		&fakeAnalyzer{},
		newFakeSink(),
		newTestLog(&memorySink{}),
	)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	calls := tr.list()
	if len(calls) != 1 || calls[0] != "fetch:on" {
		t.Errorf("fetch calls = %v; inactive and push sources must never be fetched", calls)
	}
}

func TestRunCycle_JoinsFanOutBeforeNextSource(t *testing.T) {
	tr := &trace{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("first", true), pollSource("second", true)}},
		&fakeFetcher{trace: tr, payloads: map[string][]byte{
			"first":  []byte("p1"),
			"second": []byte("p2"),
		}},
		&fakeExtractor{articles: map[string][]article.Article{
			"p1": {art("AAA", "h1"), art("BBB", "h2"), art("CCC", "h3")},
			"p2": {art("DDD", "h4")},
		}},
		&fakeAnalyzer{trace: tr},
		newFakeSink(),
		newTestLog(&memorySink{}),
	)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Every analyze call for the first source must precede the second
	// source's fetch.
	secondFetch := -1
	lastFirstAnalyze := -1
	for i, c := range tr.list() {
		switch c {
		case "fetch:second":
			secondFetch = i
		case "analyze:AAA", "analyze:BBB", "analyze:CCC":
			lastFirstAnalyze = i
		}
	}
	if secondFetch < lastFirstAnalyze {
		t.Errorf("second source started before first source's sentiment fan-out finished: %v", tr.list())
	}
}

func TestRunCycle_AnalysisFailureLeavesPending(t *testing.T) {
	sink := newFakeSink()
	logSink := &memorySink{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("wire", true)}},
		&fakeFetcher{payloads: map[string][]byte{"wire": []byte("p")}},
		&fakeExtractor{articles: map[string][]article.Article{"p": {art("ACME", "h")}}},
		&fakeAnalyzer{err: errors.New("capability down")},
		sink,
		newTestLog(logSink),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Errorf("imported = %d; analysis failure must not undo the import", res.Imported)
	}
	if len(sink.patched) != 0 {
		t.Error("failed analysis must not patch sentiment")
	}
	if logSink.count(logbook.SeverityError, "sentiment analysis failed") != 1 {
		t.Error("expected an ERROR for the failed analysis")
	}
}

func TestRunCycle_PanicIsolatedToSource(t *testing.T) {
	sink := newFakeSink()
	logSink := &memorySink{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("bad", true), pollSource("good", true)}},
		&fakeFetcher{payloads: map[string][]byte{
			"bad":  []byte("boom"),
			"good": []byte("p"),
		}},
		&fakeExtractor{
			panicOn:  "boom",
			articles: map[string][]article.Article{"p": {art("ACME", "h")}},
		},
		&fakeAnalyzer{},
		sink,
		newTestLog(logSink),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Errorf("imported = %d; a panicking source must not abort the cycle", res.Imported)
	}
	if logSink.count(logbook.SeverityError, "source processing panicked") != 1 {
		t.Error("expected an ERROR for the panicking source")
	}
}

func TestRunCycle_PanicAfterFanOutStartedStillJoins(t *testing.T) {
	// The first source's first article launches its sentiment goroutine,
	// then the second article's insert panics. The in-flight analyze call
	// must still be joined before the next source is fetched.
	tr := &trace{}
	sink := &panickySink{fakeSink: newFakeSink(), panicOn: 2}
	logSink := &memorySink{}
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("bad", true), pollSource("good", true)}},
		&fakeFetcher{trace: tr, payloads: map[string][]byte{
			"bad":  []byte("p1"),
			"good": []byte("p2"),
		}},
		&fakeExtractor{articles: map[string][]article.Article{
			"p1": {art("AAA", "h1"), art("BBB", "h2")},
			"p2": {art("CCC", "h3")},
		}},
		&fakeAnalyzer{trace: tr, delay: 30 * time.Millisecond},
		sink,
		newTestLog(logSink),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 {
		t.Errorf("imported = %d; only the healthy source counts", res.Imported)
	}
	if logSink.count(logbook.SeverityError, "source processing panicked") != 1 {
		t.Error("expected an ERROR for the panicking source")
	}

	analyzeAAA := -1
	fetchGood := -1
	for i, c := range tr.list() {
		switch c {
		case "analyze:AAA":
			analyzeAAA = i
		case "fetch:good":
			fetchGood = i
		}
	}
	if analyzeAAA == -1 {
		t.Fatal("first article's analyze call never finished")
	}
	if fetchGood < analyzeAAA {
		t.Errorf("next source fetched while the panicking source's fan-out was in flight: %v", tr.list())
	}
}

func TestRunCycle_ListFailure(t *testing.T) {
	o := NewOrchestrator(
		&fakeSources{err: errors.New("store down")},
		&fakeFetcher{}, &fakeExtractor{}, &fakeAnalyzer{}, newFakeSink(),
		newTestLog(&memorySink{}),
	)
	if _, err := o.RunCycle(context.Background()); err == nil {
		t.Fatal("expected error when the registry is unreachable")
	}
}

func TestRunCycle_PersistOrderFollowsExtraction(t *testing.T) {
	sink := newFakeSink()
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("wire", true)}},
		&fakeFetcher{payloads: map[string][]byte{"wire": []byte("p")}},
		&fakeExtractor{articles: map[string][]article.Article{
			"p": {art("AAA", "1"), art("BBB", "2"), art("CCC", "3")},
		}},
		&fakeAnalyzer{},
		sink,
		newTestLog(&memorySink{}),
	)

	if _, err := o.RunCycle(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []string{"AAA", "BBB", "CCC"}
	for i, a := range sink.inserted {
		if a.Ticker != want[i] {
			t.Fatalf("persist order %v broken at %d: got %s", want, i, a.Ticker)
		}
	}
}

func TestRunCycle_ScenarioMixedSources(t *testing.T) {
	// Three sources: one healthy, one returning garbage extraction, one
	// with a filter that drops everything. The counts must reflect only
	// what actually happened per source.
	filterAll := pollSource("noisy", true)
	filterAll.IncludeKeywords = []string{"nomatch-keyword"}

	sink := newFakeSink()
	o := NewOrchestrator(
		&fakeSources{sources: []source.Source{pollSource("ok", true), filterAll}},
		&fakeFetcher{payloads: map[string][]byte{
			"ok":    []byte("p1"),
			"noisy": []byte("p2"),
		}},
		&fakeExtractor{articles: map[string][]article.Article{
			"p1": {art("ACME", "Acme beats earnings")},
			"p2": {art("JUNK", "spam one"), art("MORE", "spam two")},
		}},
		&fakeAnalyzer{},
		sink,
		newTestLog(&memorySink{}),
	)

	res, err := o.RunCycle(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 1 || res.Filtered != 2 {
		t.Errorf("result = %+v, want {1 2}", res)
	}
	if fmt.Sprint(sink.inserted[0].Ticker) != "ACME" {
		t.Errorf("unexpected survivor %s", sink.inserted[0].Ticker)
	}
}

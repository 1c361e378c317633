package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/integreat/contentapi/internal/store"
)

var modified = time.Date(2020, 5, 4, 22, 30, 0, 0, time.UTC)

func newTestService(t *testing.T) *Service {
	t.Helper()
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return NewService(nil, Options{BaseURL: "https://cms.example.org/", Location: berlin})
}

func page(id, parent int64, status, title, slug string, order int) store.ContentRow {
	return store.ContentRow{
		ID: id, Parent: parent, Status: status, Title: title, Slug: slug, Type: store.TypePage,
		MenuOrder: order, ModifiedGMT: modified, Content: "<p>" + title + "</p>",
		GUID: "https://cms.example.org/augsburg/?page_id=" + slug,
	}
}

func pageFixture() *fakeStore {
	f := newFakeStore()
	f.put(page(1, 0, store.StatusPublish, "Willkommen", "willkommen", 0), "de", 100)
	f.put(page(2, 0, "draft", "Entwurf", "entwurf", 0), "de", 101)
	f.put(page(3, 2, store.StatusPublish, "Kind", "kind", 0), "de", 102)
	alpha := page(4, 1, store.StatusPublish, "Alpha", "alpha", 1)
	alpha.Content = ""
	f.put(alpha, "de", 103)
	f.put(page(5, 2, store.StatusTrash, "Alt", "alt", 0), "de", 104)
	f.put(page(6, 0, store.StatusTrash, "Weg", "weg", 2), "de", 105)

	f.put(page(11, 0, store.StatusPublish, "Welcome", "welcome", 0), "en", 100)
	f.put(page(12, 0, store.StatusPublish, "Bienvenue", "bienvenue", 0), "fr", 100)
	f.thumbnails[1] = "https://cms.example.org/augsburg/wp-content/uploads/2020/05/header.jpg"
	return f
}

func ids(items []Item) []int64 {
	out := make([]int64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestModifiedPagesEndToEnd(t *testing.T) {
	f := pageFixture()
	svc := newTestService(t)
	since, err := ParseSince("2015-01-01T00:00:00+02:00")
	require.NoError(t, err)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypePage, Language: "de", Since: since})
	require.NoError(t, err)

	assert.Equal(t, []int64{5, 1, 4, 6}, ids(res.Items))
	assert.Empty(t, res.Diagnostics)

	byID := map[int64]Item{}
	for _, it := range res.Items {
		byID[it.ID] = it
	}
	for _, id := range []int64{5, 6} {
		assert.Equal(t, store.StatusTrash, byID[id].Status)
		assert.Empty(t, byID[id].Title)
		assert.Empty(t, byID[id].Content)
		assert.Empty(t, byID[id].Excerpt)
	}

	welcome := byID[1]
	assert.Equal(t, "Willkommen", welcome.Title)
	assert.Equal(t, "<p>Willkommen</p>\n", welcome.Content)
	assert.Equal(t, "Willkommen", welcome.Excerpt)
	assert.Equal(t, map[string]int64{"en": 11}, welcome.AvailableLanguages)
	assert.Equal(t, map[string]string{"en": "https://cms.example.org/augsburg/en/welcome/"}, welcome.AvailableLanguageURLs)
	require.NotNil(t, welcome.Thumbnail)
	assert.Contains(t, *welcome.Thumbnail, "header.jpg")
	assert.Equal(t, "2020-05-04 22:30:00", welcome.ModifiedGMT)

	alpha := byID[4]
	assert.Equal(t, "<p>empty</p>\n", alpha.Content)
	assert.Nil(t, alpha.Thumbnail)
	assert.Empty(t, alpha.AvailableLanguages)
	assert.Equal(t, Permalink{
		URL:          "https://cms.example.org/augsburg/de/willkommen/alpha/",
		URLSite:      "https://cms.example.org/augsburg",
		URLPage:      "willkommen/alpha",
		URLPageID:    "https://cms.example.org/augsburg/?page_id=alpha",
		URLDate1Name: "https://cms.example.org/augsburg/2020/05/05/willkommen/alpha",
		URLDate2Name: "https://cms.example.org/augsburg/2020/05/willkommen/alpha",
	}, alpha.Permalink)
	assert.Equal(t, 1, alpha.Order)
	assert.Equal(t, int64(1), alpha.Parent)
}

func TestModifiedClampsWatermarkInQuery(t *testing.T) {
	f := pageFixture()
	svc := newTestService(t)

	_, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypePage, Language: "de", Since: time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	require.NotEmpty(t, f.queries)
	where := f.queries[0].Where
	assert.Contains(t, where, ComposeModified(store.TypePage, "de", BaselineEpoch).Where[1])
}

func TestModifiedNoTrash(t *testing.T) {
	f := pageFixture()
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypePage, Language: "de", Since: BaselineEpoch, NoTrash: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids(res.Items))
}

func TestModifiedReportsOrphans(t *testing.T) {
	f := pageFixture()
	f.put(page(7, 999, store.StatusPublish, "Waise", "waise", 5), "de", 106)
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypePage, Language: "de", Since: BaselineEpoch})
	require.NoError(t, err)
	assert.Contains(t, ids(res.Items), int64(7))
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, KindOrphanedParent, res.Diagnostics[0].Kind)
	assert.Equal(t, int64(7), res.Diagnostics[0].ItemID)
}

func eventFixture() *fakeStore {
	f := newFakeStore()
	f.put(store.ContentRow{
		ID: 40, Type: store.TypeEventRecurring, Status: store.StatusPublish, Title: "Sprachkurs", Slug: "sprachkurs",
		ModifiedGMT: modified, Content: "<p>Deutsch lernen</p>", Event: &store.EventRecord{EventID: 7},
	}, "de", 200)
	f.put(store.ContentRow{
		ID: 41, Type: store.TypeEventRecurring, Status: store.StatusPublish, Title: "Language course", Slug: "language-course",
		ModifiedGMT: modified, Event: &store.EventRecord{EventID: 8},
	}, "en", 200)
	f.put(store.ContentRow{
		ID: 50, Type: store.TypeEvent, Status: store.StatusPublish, Title: "Fest", Slug: "fest",
		ModifiedGMT: modified, Content: "<p>Sommerfest</p>",
		Event: &store.EventRecord{EventID: 9, StartDate: ptr(day(2024, 7, 1)), EndDate: ptr(day(2024, 7, 1)), StartTime: "16:00", EndTime: "22:00"},
	}, "de", 300)
	f.rules[7] = mondayWednesdayRecord()
	return f
}

func TestModifiedEventsSynthesizesOccurrences(t *testing.T) {
	f := eventFixture()
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypeEvent, Language: "de", Since: BaselineEpoch})
	require.NoError(t, err)

	require.Equal(t, []int64{50, 40, 40}, ids(res.Items))
	for _, it := range res.Items {
		assert.Equal(t, store.TypeEvent, it.Type)
		require.NotNil(t, it.Event)
	}
	assert.Equal(t, "2024-01-01", res.Items[1].Event.StartDate)
	assert.Equal(t, "2024-01-08", res.Items[2].Event.StartDate)
	assert.Equal(t, "09:00", res.Items[2].Event.StartTime)
	require.NotNil(t, res.Items[1].Event.RecurrenceID)
	assert.Equal(t, int64(7), *res.Items[1].Event.RecurrenceID)
	assert.Equal(t, map[string]int64{"en": 41}, res.Items[1].AvailableLanguages)
	assert.Equal(t, "https://cms.example.org/augsburg/en/events/language-course/", res.Items[1].AvailableLanguageURLs["en"])
	assert.Equal(t, "https://cms.example.org/augsburg/de/events/sprachkurs/", res.Items[1].Permalink.URL)
}

func TestModifiedEventsMergesMaterializedOccurrences(t *testing.T) {
	f := eventFixture()
	f.posts = append(f.posts, store.ContentRow{
		ID: 60, Type: store.TypeEvent, Status: store.StatusPublish, Title: "Sprachkurs", Slug: "sprachkurs-2024-01-01",
		ModifiedGMT: modified, Content: "<p>Deutsch lernen</p>",
		Event: &store.EventRecord{EventID: 70, RecurrenceID: ptr(int64(7)), StartDate: ptr(day(2024, 1, 1)), StartTime: "09:00", EndTime: "11:00"},
	})
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypeEvent, Language: "de", Since: BaselineEpoch})
	require.NoError(t, err)

	assert.Equal(t, []int64{50, 60}, ids(res.Items))
	assert.Equal(t, map[string]int64{"en": 41}, res.Items[1].AvailableLanguages)
}

func TestModifiedEventsSkipsTemplatesWhenOccurrencesAreMaterialized(t *testing.T) {
	f := eventFixture()
	f.put(store.ContentRow{
		ID: 61, Type: store.TypeEvent, Status: store.StatusPublish, Title: "Lauf", Slug: "lauf",
		ModifiedGMT: modified, Event: &store.EventRecord{EventID: 71, RecurrenceID: ptr(int64(99)), StartDate: ptr(day(2024, 2, 1))},
	}, "de", 301)
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypeEvent, Language: "de", Since: BaselineEpoch})
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 61}, ids(res.Items))
	assert.Len(t, f.queries, 1)
}

func TestModifiedEventsIgnoresHiddenOccurrencesWhenSkippingTemplates(t *testing.T) {
	f := eventFixture()
	f.put(store.ContentRow{
		ID: 62, Type: store.TypeEvent, Status: "draft", Title: "Reihe", Slug: "reihe", ModifiedGMT: modified,
	}, "de", 302)
	f.put(store.ContentRow{
		ID: 61, Parent: 62, Type: store.TypeEvent, Status: store.StatusPublish, Title: "Lauf", Slug: "lauf",
		ModifiedGMT: modified, Event: &store.EventRecord{EventID: 71, RecurrenceID: ptr(int64(99)), StartDate: ptr(day(2024, 2, 1))},
	}, "de", 301)
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypeEvent, Language: "de", Since: BaselineEpoch})
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 40, 40}, ids(res.Items))
}

func TestModifiedEventsDiagnosesMalformedRule(t *testing.T) {
	f := eventFixture()
	f.put(store.ContentRow{
		ID: 42, Type: store.TypeEventRecurring, Status: store.StatusPublish, Title: "Kaputt", Slug: "kaputt",
		ModifiedGMT: modified, Event: &store.EventRecord{EventID: 12},
	}, "de", 201)
	f.rules[12] = store.RecurrenceRuleRecord{EventID: 12, StartDate: ptr(day(2024, 1, 1))}
	svc := newTestService(t)

	res, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypeEvent, Language: "de", Since: BaselineEpoch})
	require.NoError(t, err)
	assert.NotContains(t, ids(res.Items), int64(42))
	assert.Len(t, res.Items, 3)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, KindMalformedRecurrence, res.Diagnostics[0].Kind)
	assert.Equal(t, int64(42), res.Diagnostics[0].ItemID)
}

func TestModifiedValidatesRequest(t *testing.T) {
	svc := newTestService(t)
	f := pageFixture()

	_, err := svc.Modified(context.Background(), f.handle(), Request{PostType: "attachment", Language: "de", Since: BaselineEpoch})
	assert.True(t, IsValidationError(err))
	_, err = svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypePage, Since: BaselineEpoch})
	assert.True(t, IsValidationError(err))
	assert.Empty(t, f.queries)
}

func TestModifiedWrapsStoreFailures(t *testing.T) {
	f := pageFixture()
	f.err = errStoreDown
	svc := newTestService(t)

	_, err := svc.Modified(context.Background(), f.handle(), Request{PostType: store.TypePage, Language: "de", Since: BaselineEpoch})
	require.Error(t, err)
	var upstream *UpstreamUnavailableError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "compose", upstream.Op)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestServiceStageOrder(t *testing.T) {
	assert.Equal(t, []string{"compose", "visibility", "recurrence", "trash", "attach", "project"}, newTestService(t).Stages())
}

func TestPostLookup(t *testing.T) {
	f := pageFixture()
	f.put(store.ContentRow{
		ID: 50, Type: store.TypeEvent, Status: store.StatusPublish, Title: "Fest", Slug: "fest", ModifiedGMT: modified,
	}, "de", 300)
	svc := newTestService(t)
	ctx := context.Background()

	item, _, err := svc.Post(ctx, f.handle(), PostRequest{Language: "de", ID: 4})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", item.Title)

	item, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de", URL: "https://cms.example.org/augsburg/de/willkommen/alpha/"})
	require.NoError(t, err)
	assert.Equal(t, int64(4), item.ID)

	item, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de", URL: "https://cms.example.org/augsburg/?page_id=1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.ID)

	item, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de", URL: "https://cms.example.org/augsburg/de/events/fest/"})
	require.NoError(t, err)
	assert.Equal(t, int64(50), item.ID)

	for _, req := range []PostRequest{
		{Language: "de", ID: 3},
		{Language: "de", ID: 2},
		{Language: "de", ID: 404},
		{Language: "de", URL: "https://cms.example.org/augsburg/de/nirgends/"},
	} {
		_, _, err := svc.Post(ctx, f.handle(), req)
		assert.True(t, errors.Is(err, store.ErrNotFound), "request %+v: %v", req, err)
	}

	_, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de"})
	assert.True(t, IsValidationError(err))
}

func TestPostLookupMatchesURLLanguage(t *testing.T) {
	f := pageFixture()
	f.put(page(20, 0, store.StatusPublish, "Impressum", "impressum", 0), "de", 400)
	f.put(page(21, 0, store.StatusPublish, "Imprint", "impressum", 0), "en", 400)
	svc := newTestService(t)
	ctx := context.Background()

	item, _, err := svc.Post(ctx, f.handle(), PostRequest{Language: "en", URL: "https://cms.example.org/augsburg/en/impressum/"})
	require.NoError(t, err)
	assert.Equal(t, int64(21), item.ID)
	assert.Equal(t, map[string]int64{"de": 20}, item.AvailableLanguages)

	item, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de", URL: "https://cms.example.org/augsburg/de/impressum/"})
	require.NoError(t, err)
	assert.Equal(t, int64(20), item.ID)

	for _, req := range []PostRequest{
		{Language: "de", URL: "https://cms.example.org/augsburg/en/impressum/"},
		{Language: "en", URL: "https://cms.example.org/augsburg/?page_id=20"},
		{Language: "en", ID: 1},
	} {
		_, _, err := svc.Post(ctx, f.handle(), req)
		assert.ErrorIs(t, err, store.ErrNotFound, "request %+v", req)
	}
}

func TestPostLookupSkipsUnpublishedSlugTwins(t *testing.T) {
	f := pageFixture()
	f.put(page(30, 0, store.StatusTrash, "Kontakt alt", "kontakt", 0), "de", 500)
	f.put(page(31, 0, store.StatusPublish, "Kontakt", "kontakt", 0), "de", 501)
	f.put(store.ContentRow{ID: 32, Type: "attachment", Status: store.StatusPublish, Slug: "logo"}, "de", 502)
	svc := newTestService(t)
	ctx := context.Background()

	item, _, err := svc.Post(ctx, f.handle(), PostRequest{Language: "de", URL: "https://cms.example.org/augsburg/de/kontakt/"})
	require.NoError(t, err)
	assert.Equal(t, int64(31), item.ID)

	_, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de", ID: 30})
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, _, err = svc.Post(ctx, f.handle(), PostRequest{Language: "de", URL: "https://cms.example.org/augsburg/?p=32"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

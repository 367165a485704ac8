package flow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/params"
	"github.com/BTreeMap/LaunchPipe/internal/provision"
	"github.com/BTreeMap/LaunchPipe/internal/store"
	"github.com/BTreeMap/LaunchPipe/internal/widget"
)

const (
	origin   = "https://app.example"
	clientID = "browser-0001"
)

type fixture struct {
	prov     *MockProvisioner
	widget   *MockWidget
	notifier *MockNotifier
	store    *store.InMemoryStore
	coord    *SessionCoordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		prov:     NewMockProvisioner("tok-123"),
		widget:   NewMockWidget(),
		notifier: &MockNotifier{},
		store:    store.NewInMemoryStore(),
	}
	f.coord = NewSessionCoordinator(Dependencies{
		Provisioner: f.prov,
		Snapshots:   params.NewSnapshotter(f.store, origin, clientID, nil),
		Widgets:     f.widget,
		Opener:      f.notifier,
		Notifier:    f.notifier,
	})
	return f
}

func load(address string) Trigger {
	return Trigger{Kind: TriggerLoad, Address: address}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.FlowModuleDeepLink, Classify("42", "9"))
	assert.Equal(t, models.FlowModuleDeepLink, Classify("42", ""))
	assert.Equal(t, models.FlowSkillDeepLink, Classify("", "9"))
	assert.Equal(t, models.FlowFullExperience, Classify("", ""))
}

func TestNewSessionContextDefaultsLocale(t *testing.T) {
	set := params.ReadEntryParameters(origin + "/?id=u1&utm_source=mail")
	sc, ok := NewSessionContext(set, models.ProvenanceFresh)
	require.True(t, ok)
	assert.Equal(t, models.DefaultLocale, sc.Locale)
	assert.Equal(t, "mail", sc.Params.Value("utm_source"))

	_, ok = NewSessionContext(params.ReadEntryParameters(origin+"/?id="), models.ProvenanceFresh)
	assert.False(t, ok)
}

func TestOverlappingTriggersProvisionAndInitializeOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	f.prov.Gate = make(chan struct{})
	f.prov.Entered = make(chan struct{}, 1)
	ctx := context.Background()

	require.True(t, f.coord.Fire(ctx, load(origin+"/?id=user123&deep_link_module_id=7")))
	<-f.prov.Entered
	assert.Equal(t, models.SessionStateProcessing, f.coord.State())

	for i := 0; i < 5; i++ {
		assert.False(t, f.coord.Fire(ctx, Trigger{Kind: TriggerHistory, Address: origin + "/?id=user123"}))
		assert.Equal(t, OutcomeDropped, f.coord.OnTrigger(ctx, load(origin+"/?id=other")))
	}

	close(f.prov.Gate)
	f.coord.Wait()

	assert.Len(t, f.prov.Calls(), 1)
	assert.Len(t, f.widget.Configs(), 1)
	assert.Equal(t, models.SessionStateReady, f.coord.State())
}

func TestTriggerWithoutUserIDDoesNotProvision(t *testing.T) {
	f := newFixture(t)
	outcome := f.coord.OnTrigger(context.Background(), load(origin+"/?deep_link_module_id=7"))

	assert.Equal(t, OutcomeNoUser, outcome)
	assert.Empty(t, f.prov.Calls())
	assert.Equal(t, models.SessionStateIdle, f.coord.State())
}

func TestModuleDeepLinkScenario(t *testing.T) {
	f := newFixture(t)
	outcome := f.coord.OnTrigger(context.Background(), load(origin+"/?id=user123&deep_link_module_id=7"))
	require.Equal(t, OutcomeReady, outcome)

	sc := f.coord.Context()
	require.NotNil(t, sc)
	assert.Equal(t, models.FlowModuleDeepLink, sc.Flow)
	assert.Equal(t, "user123", sc.UserID)
	assert.Equal(t, "tok-123", sc.Token)
	assert.Equal(t, []ProvisionCall{{UserID: "user123", Locale: ""}}, f.prov.Calls())

	configs := f.widget.Configs()
	require.Len(t, configs, 1)
	data, err := json.Marshal(configs[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_auth_token":"tok-123","widget_type":"deep_link","module_id":7}`, string(data))
	assert.True(t, f.widget.Initialized())
}

func TestLocaleForwardedOnlyWhenSupplied(t *testing.T) {
	f := newFixture(t)
	f.coord.OnTrigger(context.Background(), load(origin+"/?id=u1&locale=fr_FR"))
	assert.Equal(t, "fr_FR", f.prov.Calls()[0].Locale)
	assert.Equal(t, "fr_FR", f.coord.Context().Locale)
}

func TestReloadRestoresStoredParameters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, OutcomeReady, f.coord.OnTrigger(ctx, load(origin+"/?id=u1&skill_id=3")))

	g := newFixture(t)
	g.store = f.store
	g.coord = NewSessionCoordinator(Dependencies{
		Provisioner: g.prov,
		Snapshots:   params.NewSnapshotter(f.store, origin, clientID, nil),
		Widgets:     g.widget,
		Notifier:    g.notifier,
	})
	require.Equal(t, OutcomeReady, g.coord.OnTrigger(ctx, load(origin+"/")))

	sc := g.coord.Context()
	require.NotNil(t, sc)
	assert.Equal(t, models.ProvenanceRestored, sc.Provenance)
	assert.Equal(t, models.FlowSkillDeepLink, sc.Flow)
	assert.Equal(t, "u1", g.prov.Calls()[0].UserID)
}

func TestMalformedSnapshotIsTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.store.SaveSnapshot(ctx, origin, params.SnapshotKey(clientID), "[1,2"))

	assert.Equal(t, OutcomeNoUser, f.coord.OnTrigger(ctx, load(origin+"/")))
	assert.Equal(t, models.SessionStateIdle, f.coord.State())
}

func TestProvisioningFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.prov.Err = &provision.ServiceError{Status: 500, Body: "boom"}

	outcome := f.coord.OnTrigger(context.Background(), load(origin+"/?id=u1"))
	assert.Equal(t, OutcomeProvisioningFailed, outcome)
	assert.Equal(t, models.SessionStateIdle, f.coord.State())
	assert.Empty(t, f.widget.Configs())
}

func TestMissingTokenReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.prov.Token = ""

	assert.Equal(t, OutcomeProvisioningFailed, f.coord.OnTrigger(context.Background(), load(origin+"/?id=u1")))
	assert.Equal(t, models.SessionStateIdle, f.coord.State())
}

func TestWidgetNotFound(t *testing.T) {
	f := newFixture(t)
	f.widget.SetPresent(false)

	assert.Equal(t, OutcomeWidgetSkipped, f.coord.OnTrigger(context.Background(), load(origin+"/?id=u1")))
	assert.Equal(t, models.SessionStateProvisioned, f.coord.State())
	assert.Empty(t, f.widget.Configs())
}

func TestWidgetMarkerSkipsInitialize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.widget.MarkInitialized(ctx))

	assert.Equal(t, OutcomeWidgetSkipped, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))
	assert.Equal(t, models.SessionStateReady, f.coord.State())
	assert.Empty(t, f.widget.Configs())
}

func TestInitFailureNotifiesAndBlocksFurtherAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.widget.InitErr = errors.New("rejected")

	assert.Equal(t, OutcomeWidgetFailed, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))
	assert.Equal(t, []string{InitFailureMessage}, f.notifier.Messages())

	f.widget.InitErr = nil
	assert.Equal(t, OutcomeWidgetSkipped, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))
	assert.Len(t, f.widget.Configs(), 1)
	assert.Len(t, f.prov.Calls(), 2)
}

func TestInvalidDeepLinkIDIsInitFailure(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, OutcomeWidgetFailed, f.coord.OnTrigger(context.Background(), load(origin+"/?id=u1&deep_link_module_id=abc")))
	assert.Empty(t, f.widget.Configs())
	assert.Equal(t, []string{InitFailureMessage}, f.notifier.Messages())
}

func TestHistoryTriggerIgnoredOnceReady(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, OutcomeReady, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))

	assert.Equal(t, OutcomeIgnored, f.coord.OnTrigger(ctx, Trigger{Kind: TriggerHistory, Address: origin + "/?id=u2"}))
	assert.Equal(t, OutcomeWidgetSkipped, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))
	assert.Len(t, f.widget.Configs(), 1)
}

func TestExitRequestedCountedAndNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, OutcomeReady, f.coord.OnTrigger(ctx, load(origin+"/?id=u1&deep_link_module_id=7")))

	f.coord.HandleEvent(ctx, widget.Event{Kind: widget.EventMessage, Detail: map[string]interface{}{"type": widget.MessageTypeExitRequested}})
	f.coord.HandleEvent(ctx, widget.Event{Kind: widget.EventOpenURL, Detail: map[string]interface{}{"url": "https://example.com"}})

	stats := f.coord.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.ByType[widget.MessageTypeExitRequested])
	assert.Equal(t, []string{widget.FlowCompleteMessage}, f.notifier.Messages())
	assert.Equal(t, []string{"https://example.com"}, f.notifier.URLs())
}

func TestEventsBeforeInitializationAreDropped(t *testing.T) {
	f := newFixture(t)
	f.coord.HandleEvent(context.Background(), widget.Event{Kind: widget.EventMessage})
	assert.Equal(t, 0, f.coord.Stats().Total)
}

func TestResetReenablesProvisioning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, OutcomeReady, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))
	f.coord.HandleEvent(ctx, widget.Event{Kind: widget.EventMessage, Detail: map[string]interface{}{"type": "PROGRESS"}})
	require.Equal(t, 1, f.coord.Stats().Total)

	f.coord.Reset(ctx)
	assert.Equal(t, models.SessionStateIdle, f.coord.State())
	assert.Equal(t, 0, f.coord.Stats().Total)
	assert.Empty(t, f.coord.Stats().ByType)
	assert.False(t, f.widget.Initialized())

	assert.Equal(t, OutcomeReady, f.coord.OnTrigger(ctx, load(origin+"/?id=u1")))
	assert.Len(t, f.prov.Calls(), 2)
	assert.Len(t, f.widget.Configs(), 2)

	f.coord.HandleEvent(ctx, widget.Event{Kind: widget.EventMessage, Detail: map[string]interface{}{"type": "PROGRESS"}})
	assert.Equal(t, 1, f.coord.Stats().Total, "relay must not be attached twice")
}

func TestSnapshotReflectsSession(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, OutcomeReady, f.coord.OnTrigger(context.Background(), load(origin+"/?id=u1")))

	snap := f.coord.Snapshot("s-1")
	assert.Equal(t, "s-1", snap.SessionID)
	assert.Equal(t, models.SessionStateReady, snap.State)
	assert.True(t, snap.WidgetInitialized)
	assert.False(t, snap.InFlight)
	require.NotNil(t, snap.Context)
	assert.Equal(t, "u1", snap.Context.UserID)
}

func TestFireCompletesWithoutLeaks(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.True(t, f.coord.Fire(ctx, load(origin+"/?id=u1")))
	f.coord.Wait()
	assert.Equal(t, models.SessionStateReady, f.coord.State())
}

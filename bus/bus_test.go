package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/fieldsignals/schema"
)

type stubInstance struct {
	model schema.Model
}

func (i *stubInstance) Model() schema.Model                 { return i.model }
func (i *stubInstance) DeferredFields() map[string]struct{} { return nil }

func widget() *stubInstance {
	return &stubInstance{model: &schema.ModelSpec{Name: "Widget"}}
}

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	b := New()
	var order []string

	b.Subscribe(PreSave, "Widget", "first", func(ctx context.Context, msg Message) error {
		order = append(order, "first")
		return nil
	})
	b.Subscribe(PreSave, "Widget", "second", func(ctx context.Context, msg Message) error {
		order = append(order, "second")
		return nil
	})

	err := b.Publish(context.Background(), Message{Event: PreSave, Instance: widget()})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_RoutesByEventAndModel(t *testing.T) {
	b := New()
	calls := 0

	b.Subscribe(PostSave, "Widget", "w", func(ctx context.Context, msg Message) error {
		calls++
		return nil
	})

	// Different event, same model.
	require.NoError(t, b.Publish(context.Background(), Message{Event: PreSave, Instance: widget()}))
	// Same event, different model.
	other := &stubInstance{model: &schema.ModelSpec{Name: "Article"}}
	require.NoError(t, b.Publish(context.Background(), Message{Event: PostSave, Instance: other}))
	assert.Equal(t, 0, calls)

	require.NoError(t, b.Publish(context.Background(), Message{Event: PostSave, Instance: widget()}))
	assert.Equal(t, 1, calls)
}

func TestBus_SubscribeIdempotentPerUID(t *testing.T) {
	b := New()
	calls := 0
	fn := func(ctx context.Context, msg Message) error {
		calls++
		return nil
	}

	b.Subscribe(PostInit, "Widget", "seed", fn)
	b.Subscribe(PostInit, "Widget", "seed", fn)
	assert.Equal(t, 1, b.HandlerCount(PostInit, "Widget"))

	require.NoError(t, b.Publish(context.Background(), Message{Event: PostInit, Instance: widget()}))
	assert.Equal(t, 1, calls)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	b.Subscribe(PreSave, "Widget", "gone", func(ctx context.Context, msg Message) error {
		t.Fatal("handler should have been detached")
		return nil
	})
	b.Unsubscribe(PreSave, "Widget", "gone")

	assert.Equal(t, 0, b.HandlerCount(PreSave, "Widget"))
	require.NoError(t, b.Publish(context.Background(), Message{Event: PreSave, Instance: widget()}))
}

func TestBus_HandlerErrorHaltsAndPropagates(t *testing.T) {
	b := New()
	boom := errors.New("boom")

	b.Subscribe(PreSave, "Widget", "failing", func(ctx context.Context, msg Message) error {
		return boom
	})
	b.Subscribe(PreSave, "Widget", "after", func(ctx context.Context, msg Message) error {
		t.Fatal("later handlers must not run after a failure")
		return nil
	})

	err := b.Publish(context.Background(), Message{Event: PreSave, Instance: widget()})
	require.ErrorIs(t, err, boom)
}

func TestBus_PostSaveCarriesCreatedAndUsing(t *testing.T) {
	b := New()
	var got Message

	b.Subscribe(PostSave, "Widget", "capture", func(ctx context.Context, msg Message) error {
		got = msg
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), Message{
		Event:    PostSave,
		Instance: widget(),
		Created:  true,
		Using:    "default",
	}))
	assert.True(t, got.Created)
	assert.Equal(t, "default", got.Using)
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "post_init", PostInit.String())
	assert.Equal(t, "pre_save", PreSave.String())
	assert.Equal(t, "post_save", PostSave.String())
}

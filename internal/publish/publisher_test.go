package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/mechanic-dash/internal/link"
	"github.com/shaunagostinho/mechanic-dash/internal/monitor"
	"github.com/shaunagostinho/mechanic-dash/internal/record"
)

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.msgs = append(f.msgs, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestPublisherForwardsSamplesAndStatus(t *testing.T) {
	log, _ := test.NewNullLogger()
	rdb := &fakeRedis{}
	p := newPublisher(rdb, "dash", 8, log)
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }

	p.OnStatus(link.Status{Phase: link.Connected, Peer: "OBD-II", Params: &record.Flags{Slow: true}})
	p.Apply(record.Sample{Speed: 42, RPM: 3000})
	p.OnStatus(link.Status{Phase: link.Disconnected, Peer: "OBD-II", Err: errors.New("EOF")})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	require.Eventually(t, func() bool { return rdb.count() == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	status, err := Decode(rdb.msgs[0].payload)
	require.NoError(t, err)
	assert.Equal(t, "dash", rdb.msgs[0].channel)
	assert.Equal(t, KindStatus, status.Kind)
	assert.Equal(t, "connected", status.Phase)
	require.NotNil(t, status.Params)
	assert.True(t, status.Params.Slow)

	sample, err := Decode(rdb.msgs[1].payload)
	require.NoError(t, err)
	assert.Equal(t, KindSample, sample.Kind)
	assert.Equal(t, int64(1700000000000), sample.Stamp)
	require.NotNil(t, sample.Sample)
	assert.Equal(t, 42.0, sample.Sample.Speed)

	lost, err := Decode(rdb.msgs[2].payload)
	require.NoError(t, err)
	assert.Equal(t, "EOF", lost.Error)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	log, _ := test.NewNullLogger()
	p := newPublisher(&fakeRedis{}, "dash", 2, log)

	before := testutil.ToFloat64(monitor.PublishDropped)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			p.Apply(record.Sample{Speed: float64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Apply blocked on a full queue")
	}
	assert.Equal(t, before+3, testutil.ToFloat64(monitor.PublishDropped))
}

func TestPublisherLogsFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := newPublisher(&fakeRedis{err: errors.New("connection refused")}, "dash", 1, log)
	p.Apply(record.Sample{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	require.Eventually(t, func() bool { return hook.LastEntry() != nil }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "publish failed", hook.LastEntry().Message)
	assert.Equal(t, "publish", hook.LastEntry().Data["component"])
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00})
	assert.Error(t, err)
}

package processing

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFormatInfluxLine(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	stats := Stats{
		FramesSeen:      12,
		Unmatched:       2,
		Classifications: 1,
		Reports:         1,
		FillLevel:       5700,
	}

	line := FormatInfluxLine("csi", stats, ts)
	assert.Equal(t,
		"csi fill=5700i,compactions=0i,frames=12i,unmatched=2i,malformed=0i,classifications=1i,motion_detections=0i,reports=1i,samples_dropped=0i,queue_dropped=0i 1700000000000000000\n",
		line)

	stats.HasResult = true
	stats.LastMetric = 7.12345
	stats.LastMotion = true
	line = FormatInfluxLine("csi", stats, ts)
	assert.Contains(t, line, ",metric=7.123,motion=true 1700000000000000000\n")
}

func TestSampler_SampleAndLog(t *testing.T) {
	store := NewDataSampleStore()
	store.UpdateSampleStore(Stats{FramesSeen: 3})

	var out bytes.Buffer
	s := NewSampler(time.Second, &out, "", store, zap.NewNop())
	s.now = func() time.Time { return time.Unix(1, 0) }

	s.SampleAndLog()
	assert.True(t, strings.HasPrefix(out.String(), "csi fill=0i"))
	assert.True(t, strings.HasSuffix(out.String(), " 1000000000\n"))
}

func TestSampler_RunWritesDatagrams(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	conn, err := net.DialUDP("udp", nil, listener.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	store := NewDataSampleStore()
	store.UpdateSampleStore(Stats{FramesSeen: 42})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewSampler(10*time.Millisecond, conn, "csi_test", store, zap.NewNop()).Run(ctx)

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, err := listener.Read(buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf[:n]), "csi_test "))
	assert.Contains(t, string(buf[:n]), "frames=42i")
}

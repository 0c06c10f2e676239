package stdlogadapter

import (
	"bytes"
	"log"
	"testing"

	ratelimiter "github.com/jassus213/go-quota-limiter"
	"github.com/stretchr/testify/assert"
)

var _ ratelimiter.Logger = (*StdLogger)(nil)

func TestStdLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(log.New(&buf, "", 0))

	l.Debugf("hidden")
	l.Infof("blocked %s", "a")
	l.Errorf("failed %d", 1)
	assert.Equal(t, "[INFO] blocked a\n[ERROR] failed 1\n", buf.String())

	buf.Reset()
	l.Verbose().Debugf("shown %d", 2)
	assert.Equal(t, "[DEBUG] shown 2\n", buf.String())
}

package pn532_uart

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
)

// fakePn532 answers PN532 command frames, running MIFARE commands against an
// in-memory tag.
type fakePn532 struct {
	mu     sync.Mutex
	rx     bytes.Buffer
	card   *mifare.MemoryCard
	sak    byte
	chunk  int
	writes [][]byte
}

func newFakePn532(card *mifare.MemoryCard) *fakePn532 {
	return &fakePn532{card: card, sak: 0x08}
}

func (p *fakePn532) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rx.Len() == 0 {
		return 0, nil
	}

	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	return p.rx.Read(b[:n])
}

func (p *fakePn532) Drain() error {
	return nil
}

func (p *fakePn532) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writes = append(p.writes, append([]byte{}, b...))

	if len(b) < 7 || b[0] == 0x55 || bytes.Equal(b, ackFrame) || bytes.Equal(b, nackFrame) {
		return len(b), nil
	}

	data := b[5 : 5+int(b[3])]
	cmd := data[1]
	args := data[2:]

	p.rx.Write(ackFrame)
	res, ok := p.handle(cmd, args)
	if ok {
		frm, _ := buildFrame(pn532ToHost, cmd+1, res)
		p.rx.Write(frm)
	}

	return len(b), nil
}

func (p *fakePn532) lastWrite() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes[len(p.writes)-1]
}

func (p *fakePn532) setCard(card *mifare.MemoryCard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.card = card
}

func (p *fakePn532) handle(cmd byte, args []byte) ([]byte, bool) {
	switch cmd {
	case cmdSamConfiguration:
		return []byte{}, true
	case cmdGetFirmwareVersion:
		return []byte{0x32, 0x01, 0x06, 0x07}, true
	case cmdGetGeneralStatus:
		if p.card == nil {
			return []byte{0x00, 0x00, 0x00}, true
		}
		return []byte{0x00, 0x01, 0x01}, true
	case cmdInListPassiveTarget:
		if p.card == nil {
			return nil, false
		}
		uid := p.card.Bytes()[0:4]
		res := []byte{0x01, 0x01, 0x00, 0x04, p.sak, 0x04}
		return append(res, uid...), true
	case cmdInDataExchange:
		return p.exchange(args[1:]), true
	}
	return nil, false
}

func (p *fakePn532) exchange(mf []byte) []byte {
	if p.card == nil {
		return []byte{0x01}
	}

	switch mf[0] {
	case mfAuthKeyA, mfAuthKeyB:
		var key mifare.Key
		copy(key[:], mf[2:8])
		err := p.card.Authenticate(int(mf[1]), mifare.KeyType(mf[0]), key)
		if err != nil {
			return []byte{statusMifareErr}
		}
		return []byte{statusOk}
	case mfRead:
		b, err := p.card.ReadBlock(int(mf[1]))
		if err != nil {
			return []byte{statusMifareErr}
		}
		return append([]byte{statusOk}, b[:]...)
	case mfWrite:
		var b mifare.Block
		copy(b[:], mf[2:])
		err := p.card.WriteBlock(int(mf[1]), b)
		if err != nil {
			return []byte{statusMifareErr}
		}
		return []byte{statusOk}
	}
	return []byte{0x27}
}

var testUID = [4]byte{0x04, 0xA2, 0x3B, 0x91}

func TestBuildFrame(t *testing.T) {
	t.Parallel()

	frm, err := buildFrame(hostToPn532, cmdGetFirmwareVersion, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x02, 0xFE, 0xD4, 0x02, 0x2A, 0x00}, frm)

	_, err = buildFrame(hostToPn532, cmdInDataExchange, make([]byte, 254))
	assert.Error(t, err)
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	valid, err := buildFrame(pn532ToHost, 0x03, []byte{0x32, 0x01, 0x06, 0x07})
	require.NoError(t, err)

	badLen := append([]byte{}, valid...)
	badLen[4]++

	badSum := append([]byte{}, valid...)
	badSum[len(badSum)-2]++

	wrongTfi, err := buildFrame(hostToPn532, 0x03, nil)
	require.NoError(t, err)

	tests := map[string]struct {
		input   []byte
		want    []byte
		done    bool
		wantErr bool
	}{
		"valid":        {input: valid, want: []byte{0x03, 0x32, 0x01, 0x06, 0x07}, done: true},
		"incomplete":   {input: valid[:6], done: false},
		"no start":     {input: []byte{0x00, 0x00}, done: false},
		"bad length":   {input: badLen, done: true, wantErr: true},
		"bad checksum": {input: badSum, done: true, wantErr: true},
		"wrong tfi":    {input: wrongTfi, done: true, wantErr: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			data, done, err := parseFrame(tc.input)
			assert.Equal(t, tc.done, done)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.want, data)
			}
		})
	}
}

func TestConnectCommands(t *testing.T) {
	t.Parallel()

	port := newFakePn532(nil)
	port.chunk = 3

	require.NoError(t, SamConfiguration(port))

	fv, err := GetFirmwareVersion(port)
	require.NoError(t, err)
	assert.Equal(t, "1.6", fv.Version)
	assert.True(t, fv.SupportIso14443a)
	assert.True(t, fv.SupportIso14443b)
	assert.True(t, fv.SupportIso18092)

	gs, err := GetGeneralStatus(port)
	require.NoError(t, err)
	assert.False(t, gs.FieldPresent)
	assert.Equal(t, byte(0), gs.LastError)

	assert.Equal(t, ackFrame, port.lastWrite())
}

func TestInListPassiveTarget(t *testing.T) {
	t.Parallel()

	port := newFakePn532(nil)

	tgt, err := InListPassiveTarget(port)
	require.NoError(t, err)
	assert.Nil(t, tgt)
	assert.Equal(t, ackFrame, port.lastWrite())

	port.setCard(mifare.NewBlankMemoryCard(mifare.Classic1K(), testUID))

	tgt, err = InListPassiveTarget(port)
	require.NoError(t, err)
	require.NotNil(t, tgt)
	assert.Equal(t, "04a23b91", tgt.Uid)
	assert.Equal(t, [2]byte{0x00, 0x04}, tgt.Atqa)

	layout, ok := tgt.Layout()
	assert.True(t, ok)
	assert.Equal(t, mifare.Size1K, layout.Size())

	port.sak = 0x00
	tgt, err = InListPassiveTarget(port)
	require.NoError(t, err)
	_, ok = tgt.Layout()
	assert.False(t, ok)
}

func TestMifareCardWriteRead(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.ClassicMini(), testUID)
	port := newFakePn532(card)

	tgt, err := InListPassiveTarget(port)
	require.NoError(t, err)
	require.NotNil(t, tgt)

	mc, err := NewMifareCard(port, tgt)
	require.NoError(t, err)

	layout, _ := tgt.Layout()
	opts := readers.DefaultTagOptions()
	token, err := readers.WriteToken(mc, layout, tgt.Uid, "pn532_uart:/dev/fake", opts, "hello pn532")
	require.NoError(t, err)
	assert.Equal(t, "hello pn532", token.Text)
	assert.Equal(t, "04a23b91", token.UID)

	assert.Equal(t, "hello pn532", string(card.Bytes()[64:75]))
}

func TestMifareCardWrongKey(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.ClassicMini(), testUID)
	port := newFakePn532(card)

	tgt, err := InListPassiveTarget(port)
	require.NoError(t, err)

	mc, err := NewMifareCard(port, tgt)
	require.NoError(t, err)

	err = mc.Authenticate(7, mifare.KeyB, mifare.Key{1, 2, 3, 4, 5, 6})
	assert.ErrorIs(t, err, mifare.ErrAuthFailed)

	reads, err := mifare.ReadTag(mc, mifare.ClassicMini(), mifare.KeyA, mifare.Key{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	for _, sr := range reads {
		assert.False(t, sr.Authenticated)
	}
}

func TestPollReportsTokens(t *testing.T) {
	t.Parallel()

	card := mifare.NewBlankMemoryCard(mifare.ClassicMini(), testUID)
	opts := readers.DefaultTagOptions()
	_, err := mifare.WriteText(card, card.Layout(), 1, opts.KeyType, opts.Key, "**random:snes")
	require.NoError(t, err)

	port := newFakePn532(card)
	r := NewReader(nil)
	iq := make(chan readers.Scan)
	done := make(chan struct{})
	defer close(done)

	go r.poll(port, "pn532_uart:/dev/fake", done, iq, opts)

	select {
	case scan := <-iq:
		require.NoError(t, scan.Error)
		require.NotNil(t, scan.Token)
		assert.Equal(t, "**random:snes", scan.Token.Text)
		assert.Equal(t, "pn532_uart:/dev/fake", scan.Token.Source)
	case <-time.After(5 * time.Second):
		t.Fatal("no token scanned")
	}

	port.setCard(nil)

	select {
	case scan := <-iq:
		assert.Nil(t, scan.Token)
		assert.NoError(t, scan.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("token not removed")
	}
}

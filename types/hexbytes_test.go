package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytes(t *testing.T) {
	c := qt.New(t)

	c.Run("String", func(c *qt.C) {
		c.Assert(HexBytes(nil).String(), qt.Equals, "0x")
		c.Assert(HexBytes{0x00, 0xab, 0xcd}.String(), qt.Equals, "0x00abcd")
	})

	c.Run("JSON", func(c *qt.C) {
		data, err := json.Marshal(HexBytes{0xde, 0xad})
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, `"0xdead"`)

		var hb HexBytes
		c.Assert(json.Unmarshal([]byte(`"0xBEEF"`), &hb), qt.IsNil)
		c.Assert(hb, qt.DeepEquals, HexBytes{0xbe, 0xef})
		c.Assert(json.Unmarshal([]byte(`"beef"`), &hb), qt.IsNil)
		c.Assert(hb, qt.DeepEquals, HexBytes{0xbe, 0xef})

		c.Assert(json.Unmarshal([]byte(`12`), &hb), qt.IsNotNil)
		c.Assert(json.Unmarshal([]byte(`"0xzz"`), &hb), qt.IsNotNil)
		c.Assert(json.Unmarshal([]byte(`"0xabc"`), &hb), qt.IsNotNil)
	})

	c.Run("Decode", func(c *qt.C) {
		hb, err := HexStringToHexBytes(" 0X0102 ")
		c.Assert(err, qt.IsNil)
		c.Assert(hb, qt.DeepEquals, HexBytes{1, 2})
		hb, err = HexStringToHexBytes("")
		c.Assert(err, qt.IsNil)
		c.Assert(hb, qt.HasLen, 0)
	})
}

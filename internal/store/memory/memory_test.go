package memory

import (
	"testing"

	"github.com/MrEthical07/notevault/internal/store/storetest"
)

func TestUserStore(t *testing.T) {
	storetest.RunUserStore(t, func(*testing.T) storetest.Store { return New() })
}

func TestNoteStore(t *testing.T) {
	storetest.RunNoteStore(t, func(*testing.T) storetest.Store { return New() })
}

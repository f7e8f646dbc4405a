package config

import (
	"fmt"
	"testing"

	"github.com/fulmenhq/gofulmen/schema"
)

func TestDebugLoad(t *testing.T) {
	catalog := schema.NewCatalog("/root/module/schemas")
	diags, err := catalog.ValidateDataByID("ratepacer/v0/config", []byte(`{"workers":4}`))
	fmt.Printf("err: %v\n", err)
	for _, d := range diags {
		fmt.Printf("diag: %+v\n", d)
	}
}

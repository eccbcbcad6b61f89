package actionbridge_test

import (
	"context"
	"fmt"

	"github.com/neurosurgery/actionbridge"
	"github.com/neurosurgery/actionbridge/pkg/adapters/file"
	"github.com/neurosurgery/actionbridge/pkg/adapters/sim"
	"github.com/neurosurgery/actionbridge/pkg/domain"
	"github.com/neurosurgery/actionbridge/pkg/neuro"
)

// Drives the example procedure without a transport.
func Example() {
	def, err := file.ReadProcedure("examples/ventriculostomy.yaml")
	if err != nil {
		panic(err)
	}
	bridge, err := actionbridge.New(def, sim.New())
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	core, err := bridge.NewCore(ctx, "example")
	if err != nil {
		panic(err)
	}
	defer core.Release(ctx)

	requests := []domain.ActionRequest{
		{Action: "begin_procedure", Token: "1"},
		{Action: "insert_catheter", Token: "2", Params: map[string]any{"depth": 50.0}},
		{Action: "drill_burr_hole", Token: "3"},
	}
	for _, req := range requests {
		res := core.Handle(ctx, req)
		_, msg := neuro.RenderResult(res)
		fmt.Printf("%s -> %s\n", req.Action, res.StepID)
		fmt.Println(msg)
	}
	fmt.Println(core.Enabled())

	// Output:
	// begin_procedure -> cranial_access
	// [succeeded] Procedure started context: patient_positioned=true
	// insert_catheter -> cranial_access
	// [rejected] action "insert_catheter" is not enabled in step "cranial_access"
	// drill_burr_hole -> catheter_placement
	// [succeeded] Burr hole drilled context: burr_hole=true
	// [insert_catheter]
}

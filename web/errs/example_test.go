package errs_test

import (
	"fmt"
	"net/http"

	"github.com/adamwoolhether/reposearch/web/errs"
)

func ExampleNew() {
	err := errs.New(http.StatusNotFound, fmt.Errorf("session not found"))

	fmt.Println(err.Code)
	fmt.Println(err.Error())
	// Output:
	// 404
	// session not found
}

func ExampleNewInternal() {
	err := errs.NewInternal(fmt.Errorf("template missing"))

	fmt.Println(err.Code)
	fmt.Println(err.IsInternal())
	// Output:
	// 500
	// true
}

func ExampleNewFieldsError() {
	err := errs.NewFieldsError("page", fmt.Errorf("must be an integer"))

	fmt.Println(err)
	// Output: [{"field":"page","error":"must be an integer"}]
}

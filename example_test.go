package stampede_test

import (
	"fmt"
	"time"

	"github.com/eluv-io/utc-go"

	"github.com/eluv-io/common-go/format/duration"
	"github.com/eluv-io/stampede-go"
)

func ExampleLock_Acquire() {
	type entry struct {
		value string
		ts    utc.UTC
	}

	// stand-in for an external cache
	cache := map[string]*entry{}

	l := stampede.New[string](duration.Spec(time.Hour)).WithName("report")

	creator := func() (string, utc.UTC, error) {
		// expensive computation, refreshing the cache as a side effect
		value := "the report"
		cache["report"] = &entry{value: value, ts: utc.Now()}
		return value, utc.Zero, nil
	}
	getter := func() (string, utc.UTC, error) {
		e, found := cache["report"]
		if !found {
			return "", utc.Zero, stampede.NeedRegeneration()
		}
		return e.value, e.ts, nil
	}

	for i := 0; i < 3; i++ {
		value, err := l.Acquire(creator, getter)
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println(value)
	}

	// Output:
	// the report
	// the report
	// the report
}

func ExampleRegistry() {
	reg := stampede.NewRegistry(func(key string) *stampede.Lock[string] {
		return stampede.New[string](duration.Spec(time.Hour)).WithName(key)
	})

	l, held := reg.Get("user/42")
	defer held.Release()

	value, err := l.Acquire(func() (string, utc.UTC, error) {
		return "profile of user 42", utc.Zero, nil
	}, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(value)

	// Output:
	// profile of user 42
}

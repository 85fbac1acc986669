package collectors_test

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	drivercollectors "github.com/MonetDB/go-monetdb/prometheus/collectors"
)

// Example demonstrates registering the driver-wide MonetDB statistics
// collector and serving it over a prometheus HTTP handler.
func Example() {
	const dbName = "myDatabase"

	if err := prometheus.Register(drivercollectors.NewCollector(dbName)); err != nil {
		log.Fatal(err)
	}

	http.Handle("/metrics", promhttp.Handler())
	// go http.ListenAndServe(":9090", nil)

	// output:
}

package common

// Exposed metric
const (
	CostMetricName = "container_runtime_cost_total"
	CostMetricHelp = "Total cost of a resource in a workload's lifetime"
)

// Unit conversions
const (
	BytesPerGB     = 1_000_000_000.0
	SecondsPerHour = 3600.0
)

// Label that carries the node name on node price series
const DefaultPriceNodeLabel = "exported_instance"

// Tenant header understood by Cortex and Mimir
const TenantHeader = "X-Scope-OrgID"

// containerFilter restricts series to ones attributable to a scheduled container
const containerFilter = `namespace!="", pod!="", container!="", node!=""`

// Default query expressions
const (
	// Cumulative CPU seconds per container
	QueryCPUUsage = `container_cpu_usage_seconds_total{` + containerFilter + `}`

	// Memory usage in bytes per container
	QueryRAMUsage = `container_memory_usage_bytes{` + containerFilter + `}`

	// GPU allocation relabelled from the exporter's exported_* labels onto identity labels
	QueryGPUUsage = `sum without (exported_pod, exported_namespace, exported_instance, exported_container, endpoint, instance, job, service, prometheus, prometheus_replica) ` +
		`(label_replace(label_replace(label_replace(label_replace(container_gpu_allocation, ` +
		`"pod", "$1", "exported_pod", "(.*)"), ` +
		`"namespace", "$1", "exported_namespace", "(.*)"), ` +
		`"node", "$1", "exported_instance", "(.*)"), ` +
		`"container", "$1", "exported_container", "(.*)"))`

	QueryCPURequests = `sum(kube_pod_container_resource_requests{resource="cpu", ` + containerFilter + `}) by (pod, container, node, namespace)`
	QueryRAMRequests = `sum(kube_pod_container_resource_requests{resource="memory", ` + containerFilter + `}) by (pod, container, node, namespace)`

	// Container start time as a unix timestamp
	QueryContainerStart = `container_start_time_seconds{` + containerFilter + `}`

	// Hourly node price; %s is the resource kind (cpu, ram, gpu)
	QueryNodeHourlyCostFormat = `sum(node_%s_hourly_cost{}) by (exported_instance)`
)

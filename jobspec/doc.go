/*
Package jobspec turns the two documents that describe a fitting job into typed
configuration.

The job-control document (root element US_JobSubmit) names the analysis method,
the cluster, the UDP progress endpoint, the request identity and the job
parameters, including the buckets that partition the search space. The
experiment document (root element US_Experiment) lists the datasets: their
data files, solution properties and speed steps.

Both documents are read as a token stream, so when an element repeats a value
that an earlier element already set, the later one wins.
*/
package jobspec

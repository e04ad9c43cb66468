// Package executor runs the jobs of a workflow.
//
// Jobs form a DAG through their needs. A pool of workers takes jobs from a
// ready queue; a job becomes ready once every job it needs has succeeded.
// When a job fails or is skipped, every job downstream of it is skipped.
// Independent jobs keep running after a failure.
//
// Steps inside a job run sequentially in the job's own workspace. Step
// attributes are expressions evaluated against the run inputs, secrets,
// outputs of needed jobs and of earlier steps, and runner facts.
package executor

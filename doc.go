/*
Fitmesh coordinates a distributed sedimentation curve fit.

A Job reads a job-control document and an experiment document, validates them,
and splits its pool of ranks into one or more master groups. Every rank is an
ifrit Runner. The sub-master of each group drives the fit of its slice of
Monte Carlo iterations on the group's workers. The supervisor, rank 0, relays
progress to the external endpoint, merges the results of every group and
packages them.

Any fatal condition on any rank ends the job through one synchronized abort:
the supervisor reports the message, every rank meets at a barrier, and every
rank exits with the same code.
*/
package fitmesh

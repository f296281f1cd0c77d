// Package worker runs the background scanner that drains the upload queue.
//
// The scanner processes one item at a time: it claims the oldest uploaded
// item, marks it transcribing before any slow work, drives the external
// pipeline, and files the outcome. A failing item is recorded and skipped;
// the loop keeps going.
package worker

// Package repository provides a generic repository bound to one collection
// of a connection handle, with create, retrieve, find, findOne, findById,
// updateOne, updateMany and delete operations over a document type T.
package repository

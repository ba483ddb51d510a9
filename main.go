package main

import (
	"fmt"

	"github.com/minacio00/gdb/query"
	"github.com/minacio00/gdb/storageengine"
)

func initDB(path string) (*storageengine.Database, error) {
	return storageengine.Open(path, storageengine.WithMergeOnClose(true))
}

func main() {
	db, err := initDB("./database")
	if err != nil {
		panic(err.Error())
	}
	defer db.Close()

	tbl, err := db.GetTable("grades")
	if err != nil {
		tbl, err = db.CreateTable("grades", 3, 0)
		if err != nil {
			panic(err.Error())
		}
	}

	q := query.New(tbl)
	if _, err := q.Insert([]int64{1, 90, 100}); err != nil {
		panic(err.Error())
	}
	if err := q.Update(1, []*int64{nil, ptr(95), nil}); err != nil {
		panic(err.Error())
	}

	recs, err := q.Select(1, 0, []int{0, 1, 2})
	if err != nil {
		panic(err.Error())
	}
	fmt.Println(recs[0].Columns)
}

func ptr(v int64) *int64 { return &v }
